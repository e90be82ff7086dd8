package storage

import (
	"encoding/json"

	"github.com/vectrix-db/vectrix/manifest"
)

// marshalManifest and unmarshalManifest encode the optimized backend's KV
// manifest record as JSON. The legacy backend does not use them (it keeps
// the manifest inside its own items document), and neither backend uses
// manifest.Store's file-based CURRENT-pointer format.
func marshalManifest(m *manifest.Manifest) ([]byte, error) {
	return json.Marshal(m)
}

func unmarshalManifest(data []byte) (*manifest.Manifest, error) {
	var m manifest.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
