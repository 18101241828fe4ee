package decoders

import (
	"strconv"
	"strings"
	"time"

	"ig-streamer/src/models"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------

// checkRequired fails on the first required field never received.
func checkRequired(snapshot models.MFieldSnapshot, required []string) error {
	for _, f := range required {
		if _, ok := snapshot[f]; !ok {
			return &MissingFieldError{Field: f}
		}
	}
	return nil
}

// itemPart returns the n-th ':' separated part of an item name.
func itemPart(item string, n int) string {
	parts := strings.Split(item, ":")
	if n < len(parts) {
		return parts[n]
	}
	return ""
}

// -----------------------------------------------------------------------------

// fieldReader parses snapshot values. A malformed required field is the
// decode error; a malformed optional one reads as unknown and is collected.
type fieldReader struct {
	snapshot models.MFieldSnapshot
	required map[string]struct{}
	err      error
	ignored  []*MalformedFieldError
}

// newReader builds a reader over snapshot. intrinsic lists the fields the
// event type cannot do without, on top of the requested ones.
func newReader(snapshot models.MFieldSnapshot, required []string, intrinsic ...string) *fieldReader {
	r := &fieldReader{
		snapshot: snapshot,
		required: make(map[string]struct{}, len(required)+len(intrinsic)),
	}
	for _, list := range [][]string{required, intrinsic} {
		for _, f := range list {
			r.required[f] = struct{}{}
		}
	}
	return r
}

func (r *fieldReader) raw(code string) (string, bool) {
	v, ok := r.snapshot[code]
	return v, ok
}

func (r *fieldReader) fail(code, raw string, err error) {
	malformed := &MalformedFieldError{Field: code, Raw: raw, Err: err}
	if _, ok := r.required[code]; !ok {
		r.ignored = append(r.ignored, malformed)
		return
	}
	if r.err == nil {
		r.err = malformed
	}
}

// malformed returns the collected failure of the first of codes, if any.
func (r *fieldReader) malformed(codes ...string) error {
	for _, c := range codes {
		for _, m := range r.ignored {
			if m.Field == c {
				return m
			}
		}
	}
	return nil
}

// unusable explains why none of codes gave a value.
func (r *fieldReader) unusable(codes ...string) error {
	if err := r.malformed(codes...); err != nil {
		return err
	}
	return &MissingFieldError{Field: strings.Join(codes, "|")}
}

// result is nil, the decode error, or an *IgnoredFieldsError when only
// optional fields were malformed.
func (r *fieldReader) result() error {
	if r.err != nil {
		return r.err
	}
	if len(r.ignored) > 0 {
		return &IgnoredFieldsError{Fields: r.ignored}
	}
	return nil
}

// present reports whether code was received with a non-blank value.
func (r *fieldReader) present(code string) bool {
	v, ok := r.snapshot[code]
	return ok && v != ""
}

// -----------------------------------------------------------------------------

func (r *fieldReader) decimal(code string) models.MField[decimal.Decimal] {
	raw, ok := r.raw(code)
	if !ok {
		return models.MField[decimal.Decimal]{}
	}
	if raw == "" {
		return models.Blank[decimal.Decimal]()
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		r.fail(code, raw, err)
		return models.MField[decimal.Decimal]{}
	}
	return models.Known(d)
}

func (r *fieldReader) integer(code string) models.MField[int64] {
	raw, ok := r.raw(code)
	if !ok {
		return models.MField[int64]{}
	}
	if raw == "" {
		return models.Blank[int64]()
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		r.fail(code, raw, err)
		return models.MField[int64]{}
	}
	return models.Known(n)
}

// flag parses "0"/"1" and the textual booleans.
func (r *fieldReader) flag(code string) models.MField[bool] {
	raw, ok := r.raw(code)
	if !ok {
		return models.MField[bool]{}
	}
	if raw == "" {
		return models.Blank[bool]()
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		r.fail(code, raw, err)
		return models.MField[bool]{}
	}
	return models.Known(b)
}

// epochMillis parses a UTC timestamp in milliseconds since the epoch.
func (r *fieldReader) epochMillis(code string) models.MField[time.Time] {
	n := r.integer(code)
	if !n.IsSet() {
		return models.MField[time.Time]{State: n.State}
	}
	return models.Known(time.UnixMilli(n.Value).UTC())
}

// timeOfDay parses HH:MM:SS; the date part is left at its zero value.
func (r *fieldReader) timeOfDay(code string) models.MField[time.Time] {
	raw, ok := r.raw(code)
	if !ok {
		return models.MField[time.Time]{}
	}
	if raw == "" {
		return models.Blank[time.Time]()
	}
	t, err := time.ParseInLocation("15:04:05", raw, time.UTC)
	if err != nil {
		r.fail(code, raw, err)
		return models.MField[time.Time]{}
	}
	return models.Known(t)
}

// bar reads a complete OHLC quadruple; a partial one stays unknown.
func (r *fieldReader) bar(prefix string) models.MField[models.MPriceBar] {
	codes := ohlc(prefix)
	values := make([]models.MField[decimal.Decimal], len(codes))
	blank := 0
	for i, c := range codes {
		values[i] = r.decimal(c)
		if values[i].State == models.FieldBlank {
			blank++
		}
	}
	for _, v := range values {
		if !v.IsSet() {
			if blank == len(codes) {
				return models.Blank[models.MPriceBar]()
			}
			return models.MField[models.MPriceBar]{}
		}
	}
	return models.Known(models.MPriceBar{
		Open:  values[0].Value,
		High:  values[1].Value,
		Low:   values[2].Value,
		Close: values[3].Value,
	})
}
