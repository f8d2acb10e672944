package calbuf

import (
	"bytes"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/mat"
)

const (
	valueFlagZstd uint64 = 1 << 0

	knownValueFlags = valueFlagZstd
)

var (
	zstdEncoder = must(zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault)))
	zstdDecoder = must(zstd.NewReader(nil))
)

// wireRecord is the msgpack form of a Record. msgpack has no complex or
// matrix types, so those are flattened.
type wireRecord struct {
	Index         []int        `msgpack:"ix"`
	Time          float64      `msgpack:"t"`
	Interval      float64      `msgpack:"iv"`
	FreqGroupName string       `msgpack:"fg,omitempty"`
	RefAnt        int          `msgpack:"ra"`
	RefFreq       float64      `msgpack:"rf"`
	Gain          [][2]float64 `msgpack:"g,omitempty"`
	SolnOK        bool         `msgpack:"ok"`
	Fit           float64      `msgpack:"fit"`
	Poly          *wirePoly    `msgpack:"p,omitempty"`
	Spline        *wireSpline  `msgpack:"s,omitempty"`
}

type wirePoly struct {
	Type        string      `msgpack:"ty"`
	Mode        string      `msgpack:"mo"`
	ScaleFactor [2]float64  `msgpack:"sf"`
	NPolyAmp    int         `msgpack:"na"`
	NPolyPhase  int         `msgpack:"np"`
	CoeffAmp    *wireMatrix `msgpack:"ca,omitempty"`
	CoeffPhase  *wireMatrix `msgpack:"cp,omitempty"`
	PhaseUnits  string      `msgpack:"pu,omitempty"`
}

type wireSpline struct {
	NKnotsAmp   int       `msgpack:"na"`
	NKnotsPhase int       `msgpack:"np"`
	KnotsAmp    []float64 `msgpack:"ka,omitempty"`
	KnotsPhase  []float64 `msgpack:"kp,omitempty"`
}

type wireMatrix struct {
	R    int       `msgpack:"r"`
	C    int       `msgpack:"c"`
	Data []float64 `msgpack:"d"`
}

func toWire(rec *Record) *wireRecord {
	w := &wireRecord{
		Index:         rec.Index,
		Time:          rec.Time,
		Interval:      rec.Interval,
		FreqGroupName: rec.FreqGroupName,
		RefAnt:        rec.RefAnt,
		RefFreq:       rec.RefFreq,
		Gain:          complexesToWire(rec.Gain),
		SolnOK:        rec.SolnOK,
		Fit:           rec.Fit,
	}
	if p := rec.Poly; p != nil {
		w.Poly = &wirePoly{
			Type:        string(p.Type),
			Mode:        string(p.Mode),
			ScaleFactor: [2]float64{real(p.ScaleFactor), imag(p.ScaleFactor)},
			NPolyAmp:    p.NPolyAmp,
			NPolyPhase:  p.NPolyPhase,
			CoeffAmp:    matrixToWire(p.PolyCoeffAmp),
			CoeffPhase:  matrixToWire(p.PolyCoeffPhase),
			PhaseUnits:  p.PhaseUnits,
		}
	}
	if s := rec.Spline; s != nil {
		w.Spline = &wireSpline{
			NKnotsAmp:   s.NKnotsAmp,
			NKnotsPhase: s.NKnotsPhase,
			KnotsAmp:    s.SplineKnotsAmp,
			KnotsPhase:  s.SplineKnotsPhase,
		}
	}
	return w
}

func fromWire(w *wireRecord) (Record, error) {
	rec := Record{
		Index:         w.Index,
		Time:          w.Time,
		Interval:      w.Interval,
		FreqGroupName: w.FreqGroupName,
		RefAnt:        w.RefAnt,
		RefFreq:       w.RefFreq,
		Gain:          complexesFromWire(w.Gain),
		SolnOK:        w.SolnOK,
		Fit:           w.Fit,
	}
	if p := w.Poly; p != nil {
		amp, err := matrixFromWire(p.CoeffAmp)
		if err != nil {
			return Record{}, err
		}
		phase, err := matrixFromWire(p.CoeffPhase)
		if err != nil {
			return Record{}, err
		}
		rec.Poly = &PolyRecord{
			Type:           PolyType(p.Type),
			Mode:           PolyMode(p.Mode),
			ScaleFactor:    complex(p.ScaleFactor[0], p.ScaleFactor[1]),
			NPolyAmp:       p.NPolyAmp,
			NPolyPhase:     p.NPolyPhase,
			PolyCoeffAmp:   amp,
			PolyCoeffPhase: phase,
			PhaseUnits:     p.PhaseUnits,
		}
	}
	if s := w.Spline; s != nil {
		rec.Spline = &SplineRecord{
			NKnotsAmp:        s.NKnotsAmp,
			NKnotsPhase:      s.NKnotsPhase,
			SplineKnotsAmp:   nilIfEmpty(s.KnotsAmp),
			SplineKnotsPhase: nilIfEmpty(s.KnotsPhase),
		}
	}
	return rec, nil
}

func complexesToWire(v []complex128) [][2]float64 {
	if len(v) == 0 {
		return nil
	}
	result := make([][2]float64, len(v))
	for i, c := range v {
		result[i] = [2]float64{real(c), imag(c)}
	}
	return result
}

func complexesFromWire(v [][2]float64) []complex128 {
	if len(v) == 0 {
		return nil
	}
	result := make([]complex128, len(v))
	for i, p := range v {
		result[i] = complex(p[0], p[1])
	}
	return result
}

func matrixToWire(m *mat.Dense) *wireMatrix {
	if m == nil || m.IsEmpty() {
		return nil
	}
	r, c := m.Dims()
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		data = append(data, m.RawRowView(i)...)
	}
	return &wireMatrix{R: r, C: c, Data: data}
}

func matrixFromWire(w *wireMatrix) (*mat.Dense, error) {
	if w == nil {
		return nil, nil
	}
	if w.R <= 0 || w.C <= 0 || len(w.Data) != w.R*w.C {
		return nil, fmt.Errorf("invalid matrix %dx%d with %d values", w.R, w.C, len(w.Data))
	}
	return mat.NewDense(w.R, w.C, w.Data), nil
}

func nilIfEmpty[T any](v []T) []T {
	if len(v) == 0 {
		return nil
	}
	return v
}

func msgpackAppend(buf []byte, v any) []byte {
	bb := bytesBuilder{buf}
	enc := msgpack.GetEncoder()
	enc.ResetDict(&bb, nil)
	enc.SetSortMapKeys(true)
	err := enc.Encode(v)
	msgpack.PutEncoder(enc)
	if err != nil {
		panic(fmt.Errorf("failed to encode %T using MsgPack: %w", v, err))
	}
	return bb.Buf
}

func msgpackDecode(buf []byte, v any) error {
	var r bytes.Reader
	r.Reset(buf)
	dec := msgpack.GetDecoder()
	dec.ResetDict(&r, nil)
	err := dec.Decode(v)
	msgpack.PutDecoder(dec)
	if err != nil {
		return dataErrf(buf, 0, err, "failed to decode msgpack into %T", v)
	}
	return nil
}

// encodeRow appends the stored form of rec to buf.
func encodeRow(buf []byte, rec *Record, compress bool) []byte {
	payload := msgpackAppend(nil, toWire(rec))
	var flags uint64
	if compress {
		payload = zstdEncoder.EncodeAll(payload, nil)
		flags |= valueFlagZstd
	}
	buf = appendUvarint(buf, flags)
	buf = appendFixedUint64LE(buf, xxhash.Sum64(payload))
	return appendRaw(buf, payload)
}

func decodeRow(data []byte) (Record, error) {
	d := makeByteDecoder(data)
	flags, err := d.Uvarint()
	if err != nil {
		return Record{}, err
	}
	if flags&^knownValueFlags != 0 {
		return Record{}, dataErrf(data, 0, nil, "unknown value flags %x", flags)
	}
	sum, err := d.FixedUint64LE()
	if err != nil {
		return Record{}, err
	}
	payload := d.Buf
	if xxhash.Sum64(payload) != sum {
		return Record{}, dataErrf(data, d.Off(), nil, "checksum mismatch")
	}
	if flags&valueFlagZstd != 0 {
		payload, err = zstdDecoder.DecodeAll(payload, nil)
		if err != nil {
			return Record{}, dataErrf(data, d.Off(), err, "failed to decompress row")
		}
	}
	var w wireRecord
	if err := msgpackDecode(payload, &w); err != nil {
		return Record{}, err
	}
	rec, err := fromWire(&w)
	if err != nil {
		return Record{}, dataErrf(data, d.Off(), err, "invalid row")
	}
	return rec, nil
}
