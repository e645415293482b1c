package search

import (
	"context"

	"github.com/Aman-CERP/notebrain/internal/store"
)

// lookup memoizes metadata reads for the duration of one query.
type lookup struct {
	metadata  store.MetadataStore
	chunkRecs map[string]*store.ChunkRecord
	docs      map[string]*store.DocumentRecord
}

func newLookup(metadata store.MetadataStore) *lookup {
	return &lookup{
		metadata:  metadata,
		chunkRecs: make(map[string]*store.ChunkRecord),
		docs:      make(map[string]*store.DocumentRecord),
	}
}

// chunks returns the records for ids, skipping unknown IDs.
func (l *lookup) chunks(ctx context.Context, ids []string) (map[string]*store.ChunkRecord, error) {
	var missing []string
	for _, id := range ids {
		if _, ok := l.chunkRecs[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		got, err := l.metadata.GetChunks(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, id := range missing {
			l.chunkRecs[id] = got[id]
		}
	}

	out := make(map[string]*store.ChunkRecord, len(ids))
	for _, id := range ids {
		if c := l.chunkRecs[id]; c != nil {
			out[id] = c
		}
	}
	return out, nil
}

// document returns the record for id, or nil when it is not indexed.
func (l *lookup) document(ctx context.Context, id string) (*store.DocumentRecord, error) {
	if doc, ok := l.docs[id]; ok {
		return doc, nil
	}
	doc, err := l.metadata.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	l.docs[id] = doc
	return doc, nil
}

// title returns the document title, or its ID when the record is missing.
func (l *lookup) title(ctx context.Context, id string) string {
	doc, err := l.document(ctx, id)
	if err != nil || doc == nil {
		return id
	}
	return doc.Title
}
