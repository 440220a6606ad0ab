// SPDX-License-Identifier: ice License 1.0

package terror

import (
	"fmt"
	"maps"

	"github.com/pkg/errors"
)

func New(kind, cause error, data map[string]any) *Err {
	return &Err{kind: kind, Cause: cause, Data: data}
}

func As(err error) *Err {
	var tErr *Err
	if errors.As(err, &tErr) {
		return tErr
	}

	return nil
}

// With returns a copy of e with the additional data merged in.
func (e *Err) With(key string, value any) *Err {
	data := make(map[string]any, len(e.Data)+1)
	maps.Copy(data, e.Data)
	data[key] = value

	return &Err{kind: e.kind, Cause: e.Cause, Data: data}
}

func (e *Err) Kind() error {
	return e.kind
}

func (e *Err) Error() string {
	if e.Cause == nil {
		return e.kind.Error()
	}

	return fmt.Sprintf("%v: %v", e.kind, e.Cause)
}

func (e *Err) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.kind}
	}

	return []error{e.kind, e.Cause}
}
