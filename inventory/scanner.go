package inventory

import (
	"github.com/t2bot/s3-folder-export/common"
	"github.com/t2bot/s3-folder-export/common/rcontext"
	"github.com/t2bot/s3-folder-export/datastores"
	"github.com/t2bot/s3-folder-export/util"
)

type SourceObject = datastores.ObjectInfo

// FolderInventory is a read-only snapshot of everything under a prefix.
type FolderInventory struct {
	Prefix     string
	Objects    []SourceObject
	TotalBytes int64
	Count      int
}

func (f *FolderInventory) HumanSize() string {
	return util.HumanReadableSize(f.TotalBytes)
}

type Scanner struct {
	lister datastores.Lister
}

func NewScanner(lister datastores.Lister) *Scanner {
	return &Scanner{lister: lister}
}

// Scan lists every object under the prefix, following continuation tokens until the listing ends.
func (s *Scanner) Scan(ctx rcontext.RequestContext, prefix string) (*FolderInventory, error) {
	inv := &FolderInventory{
		Prefix:  prefix,
		Objects: make([]SourceObject, 0),
	}
	err := s.walk(ctx, prefix, func(obj SourceObject) {
		inv.Objects = append(inv.Objects, obj)
		inv.TotalBytes += obj.Size
	})
	if err != nil {
		return nil, err
	}
	inv.Count = len(inv.Objects)
	ctx.Log.Debugf("Found %d objects (%s) under %s", inv.Count, inv.HumanSize(), prefix)
	return inv, nil
}

// AggregateSize totals the prefix without keeping the listing around, so callers can decide how
// to route an export before reading the whole file list.
func (s *Scanner) AggregateSize(ctx rcontext.RequestContext, prefix string) (string, int, int64, error) {
	count := 0
	total := int64(0)
	err := s.walk(ctx, prefix, func(obj SourceObject) {
		count++
		total += obj.Size
	})
	if err != nil {
		return "", 0, 0, err
	}
	return util.HumanReadableSize(total), count, total, nil
}

func (s *Scanner) walk(ctx rcontext.RequestContext, prefix string, fn func(obj SourceObject)) error {
	token := ""
	pages := 0
	for {
		page, err := s.lister.ListPage(ctx, prefix, token)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return common.NewExportError(common.ErrStoreUnavailable, "list", prefix, err)
		}
		pages++
		for _, obj := range page.Objects {
			fn(obj)
		}
		if page.NextToken == "" {
			break
		}
		token = page.NextToken
	}
	ctx.Log.Debugf("Listed %s in %d pages", prefix, pages)
	return nil
}
