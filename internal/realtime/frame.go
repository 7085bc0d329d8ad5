package realtime

import (
	"encoding/json"
	"errors"

	"github.com/kazz187/prepboard/pkg/cerr"
)

func jsonFrame(v any) ([]byte, error) {
	return json.Marshal(v)
}

// publicMessage is the part of err that may be shown to a client.
func publicMessage(err error) string {
	var cErr *cerr.Error
	if errors.As(err, &cErr) {
		return cErr.Msg
	}
	return "server error"
}
