package export

import (
	"context"
	"encoding/json"

	"github.com/steveyegge/bbs-exporter/internal/telemetry"
	"github.com/steveyegge/bbs-exporter/internal/types"
)

// record stages the record built by build under (modelType, url). build
// only runs the first time the key is seen, so repeated models such as
// users are serialized once.
func (e *Exporter) record(ctx context.Context, modelType, url string, order *int, build func() (any, error)) error {
	wrote, err := e.builder.Store().RecordFunc(ctx, modelType, url, order, func() ([]byte, error) {
		v, err := build()
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if wrote {
		telemetry.RecordWritten(ctx, modelType)
	}
	return err
}

func (e *Exporter) exportUser(ctx context.Context, u *types.User, order *int) error {
	if u == nil || u.Slug == "" {
		return nil
	}
	return e.record(ctx, "user", e.urls.UserURL(u), order, func() (any, error) {
		return e.serializer.User(u)
	})
}

func at(i int) *int {
	return &i
}
