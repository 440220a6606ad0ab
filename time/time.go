// SPDX-License-Identifier: ice License 1.0

package time

import (
	"context"
	"strconv"
	stdlibtime "time"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

func Now() *Time {
	now := stdlibtime.Now().UTC()

	return &Time{
		Time: &now,
	}
}

func New(time stdlibtime.Time) *Time {
	utc := time.UTC()

	return &Time{
		Time: &utc,
	}
}

func (t *Time) IsNil() bool {
	return t == nil || t.Time == nil
}

// UnixMilliString is the representation used in query strings.
func (t *Time) UnixMilliString() string {
	if t.IsNil() {
		return ""
	}

	return strconv.FormatInt(t.UnixMilli(), 10)
}

func (t *Time) DecodeMsgpack(dec *msgpack.Decoder) error {
	nanoSecs, err := dec.DecodeUint64()
	if err != nil {
		return errors.Wrap(err, "failed to Time.DecodeMsgpack.DecodeUint64")
	}
	if nanoSecs == 0 {
		t.Time = nil

		return nil
	}
	t.Time = new(stdlibtime.Time)
	*t.Time = stdlibtime.Unix(0, int64(nanoSecs)).UTC() //nolint:gosec // Nanos since epoch fit.

	return nil
}

func (t *Time) EncodeMsgpack(enc *msgpack.Encoder) error {
	var nanos uint64
	if !t.IsNil() {
		nanos = uint64(t.UTC().UnixNano()) //nolint:gosec // Timestamps are after epoch.
	}

	return errors.Wrap(enc.EncodeUint64(nanos), "failed to EncodeUint64")
}

func (t *Time) MarshalJSON(_ context.Context) ([]byte, error) {
	if t.IsNil() || t.UnixNano() == 0 {
		return []byte("null"), nil
	}

	//nolint:wrapcheck // We're just proxying it.
	return t.UTC().MarshalJSON()
}

func (t *Time) UnmarshalJSON(_ context.Context, bytes []byte) error {
	if err := t.unmarshallInteger(bytes); err != nil || t.Time != nil {
		return err
	}

	return t.unmarshallString(bytes)
}

func (t *Time) unmarshallInteger(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	for _, b := range data {
		if b < '0' || b > '9' {
			return nil
		}
	}
	millisOrNanos, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return errors.Wrapf(err, "invalid numeric time: %s", data)
	}
	t.Time = new(stdlibtime.Time)
	if len(data) == millisecondTimestampDigits {
		*t.Time = stdlibtime.UnixMilli(millisOrNanos).UTC()
	} else {
		*t.Time = stdlibtime.Unix(0, millisOrNanos).UTC()
	}

	return nil
}

func (t *Time) unmarshallString(bytes []byte) error {
	data := string(bytes)
	if data == "null" || data == `""` || data == "" {
		return nil
	}
	time, err := stdlibtime.Parse(`"`+stdlibtime.RFC3339Nano+`"`, data)
	if err != nil {
		return errors.Wrapf(err, "invalid time format: %v", data)
	}
	t.Time = new(stdlibtime.Time)
	*t.Time = time.UTC()

	return nil
}
