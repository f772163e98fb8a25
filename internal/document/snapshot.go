package document

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// FormatVersion is stamped into docs_json
const FormatVersion = "1.0"

type docJSON struct {
	Title   string    `json:"title"`
	Version string    `json:"version"`
	Roots   rootsJSON `json:"roots"`
}

type rootsJSON struct {
	RootIDs    []string `json:"root_ids"`
	References []Model  `json:"references"`
}

type renderItem struct {
	DocID   string            `json:"docid"`
	Roots   map[string]string `json:"roots"`
	RootIDs []string          `json:"root_ids"`
}

// Snapshot serializes the full document. After a snapshot every existing
// model counts as known to the control side.
func (d *Document) Snapshot() (*Snapshot, error) {
	var enc *bufferEncoder // byte slices are inlined as base64

	d.mu.Lock()
	refs := make([]Model, 0, len(d.order))
	for _, id := range d.order {
		m := d.models[id].clone()
		m.Attributes = enc.attrs(m.Attributes)
		refs = append(refs, m)
	}
	roots := append([]string{}, d.roots...)
	title := d.title
	d.unsynced = nil
	d.mu.Unlock()

	docs := map[string]docJSON{
		d.id: {
			Title:   title,
			Version: FormatVersion,
			Roots:   rootsJSON{RootIDs: roots, References: refs},
		},
	}

	rootMap := make(map[string]string, len(roots))
	for _, id := range roots {
		rootMap[id] = id
	}
	items := []renderItem{{DocID: d.id, Roots: rootMap, RootIDs: roots}}

	docsData, err := sonic.Marshal(docs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode docs_json: %w", err)
	}
	itemsData, err := sonic.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode render_items: %w", err)
	}

	return &Snapshot{
		DocsJSON:    docsData,
		RenderItems: itemsData,
		RootIDs:     roots,
	}, nil
}
