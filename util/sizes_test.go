package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHumanReadableSize(t *testing.T) {
	cases := map[int64]string{
		0:                                    "0.00 B",
		1023:                                 "1023.00 B",
		3072:                                 "3.00 KB",
		1536:                                 "1.50 KB",
		250 * 1024 * 1024:                    "250.00 MB",
		5 * 1024 * 1024 * 1024:               "5.00 GB",
		3 * 1024 * 1024 * 1024 * 1024 * 1024: "3072.00 TB",
	}
	for size, expected := range cases {
		assert.Equal(t, expected, HumanReadableSize(size), "size %d", size)
	}
}

func TestBytesToGb(t *testing.T) {
	assert.Equal(t, float64(5), BytesToGb(5*1024*1024*1024))
	assert.InDelta(t, 0.5, BytesToGb(512*1024*1024), 0.0001)
}
