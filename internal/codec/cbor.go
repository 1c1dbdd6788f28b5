// Package codec encodes record snapshots for the local cache. Encoding is
// CBOR with core deterministic options so equal snapshots produce equal bytes.
package codec

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/splax/deskpulse/internal/domain"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// snapshotVersion is bumped when snapshotRecord changes incompatibly.
const snapshotVersion = 2

type snapshot struct {
	Version int              `cbor:"1,keyasint"`
	Records []snapshotRecord `cbor:"2,keyasint"`
}

// snapshotRecord stores UpdatedAt as an instant; nil means absent.
type snapshotRecord struct {
	ID          string   `cbor:"1,keyasint"`
	WorkspaceID string   `cbor:"2,keyasint"`
	UpdatedAt   *instant `cbor:"3,keyasint,omitempty"`
	CreatedBy   string   `cbor:"4,keyasint,omitempty"`
	UpdatedBy   string   `cbor:"5,keyasint,omitempty"`
	Payload     []byte   `cbor:"6,keyasint"`
}

// instant is Unix seconds plus nanoseconds, covering every time.Time.
type instant struct {
	_    struct{} `cbor:",toarray"`
	Sec  int64
	Nsec int64
}

func toInstant(ts domain.Timestamp) *instant {
	if ts.IsZero() {
		return nil
	}
	t := ts.Time()
	return &instant{Sec: t.Unix(), Nsec: int64(t.Nanosecond())}
}

func (i *instant) timestamp() (domain.Timestamp, error) {
	if i == nil {
		return domain.Timestamp{}, nil
	}
	if i.Nsec < 0 || i.Nsec >= int64(time.Second) {
		return domain.Timestamp{}, fmt.Errorf("decode snapshot: nanoseconds out of range: %d", i.Nsec)
	}
	return domain.At(time.Unix(i.Sec, i.Nsec)), nil
}

// EncodeRecords serialises records into a snapshot blob.
func EncodeRecords(records []domain.Record) ([]byte, error) {
	snap := snapshot{Version: snapshotVersion, Records: make([]snapshotRecord, 0, len(records))}
	for _, r := range records {
		snap.Records = append(snap.Records, snapshotRecord{
			ID:          r.ID,
			WorkspaceID: r.WorkspaceID,
			UpdatedAt:   toInstant(r.UpdatedAt),
			CreatedBy:   r.CreatedBy,
			UpdatedBy:   r.UpdatedBy,
			Payload:     r.Payload,
		})
	}
	return encMode.Marshal(snap)
}

// DecodeRecords is the inverse of EncodeRecords.
func DecodeRecords(data []byte) ([]domain.Record, error) {
	var snap snapshot
	if err := decMode.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("decode snapshot: unsupported version %d", snap.Version)
	}
	out := make([]domain.Record, 0, len(snap.Records))
	for _, r := range snap.Records {
		updated, err := r.UpdatedAt.timestamp()
		if err != nil {
			return nil, err
		}
		rec := domain.Record{
			ID:          r.ID,
			WorkspaceID: r.WorkspaceID,
			CreatedBy:   r.CreatedBy,
			UpdatedBy:   r.UpdatedBy,
			UpdatedAt:   updated,
			Payload:     r.Payload,
		}
		out = append(out, rec)
	}
	return out, nil
}
