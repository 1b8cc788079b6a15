package cloudsync

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"budgetsync/internal/budget"
	"budgetsync/internal/model"
)

func payload(items int, lastModified int64) *model.SyncPayload {
	p := &model.SyncPayload{LastModified: lastModified}
	for i := range items {
		p.Envelopes = append(p.Envelopes, model.Envelope{ID: fmt.Sprintf("env-%d", i)})
	}
	return p
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name   string
		local  *model.SyncPayload
		cloud  *model.SyncPayload
		shared bool
		want   Direction
	}{
		{"only cloud has data", payload(0, 5), payload(2, 1), false, DirectionDownload},
		{"only local has data", payload(2, 1), payload(0, 5), false, DirectionUpload},
		{"no cloud snapshot", payload(2, 1), nil, true, DirectionUpload},
		{"nothing anywhere", payload(0, 0), nil, false, DirectionUpload},
		{"nothing anywhere, shared", payload(0, 0), nil, true, DirectionDownload},
		{"cloud without timestamp", payload(1, 5), payload(1, 0), true, DirectionUpload},
		{"local without timestamp", payload(1, 0), payload(1, 5), false, DirectionDownload},
		{"shared and cloud has more", payload(1, 9), payload(3, 5), true, DirectionDownload},
		{"not shared, cloud has more but older", payload(1, 9), payload(3, 5), false, DirectionUpload},
		{"local newer", payload(3, 9), payload(1, 5), true, DirectionUpload},
		{"cloud newer", payload(3, 5), payload(3, 9), false, DirectionDownload},
		{"same timestamp", payload(3, 5), payload(3, 5), false, DirectionUpload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.local, tt.cloud, tt.shared)
			if got.Direction != tt.want {
				t.Errorf("Decide() = %s (%s), want %s", got.Direction, got.Reason, tt.want)
			}
			if got.Reason == "" {
				t.Error("Decide() returned an empty reason")
			}
		})
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		err  error
		want Category
	}{
		{nil, CategoryNone},
		{fmt.Errorf("%w: %w", ErrEncryption, errors.New("bad header")), CategoryEncryption},
		{fmt.Errorf("decrypting: %w", budget.ErrWrongKey), CategoryEncryption},
		{fmt.Errorf("get: %w", context.DeadlineExceeded), CategoryNetwork},
		{&budget.StorageError{Op: "PutMetadata", Err: errors.New("disk full")}, CategoryStorage},
		{&budget.IntegrityError{Kind: budget.ErrDecoding, Err: errors.New("bad base64")}, CategoryValidation},
		{budget.NewInvalidInput("budgetId", "required"), CategoryValidation},
		{errors.New("read tcp: connection reset by peer"), CategoryNetwork},
		{errors.New("no identity matched any of the recipients"), CategoryEncryption},
		{errors.New("SlowDown: please reduce your request rate"), CategoryRemote},
		{errors.New("checksum mismatch"), CategoryValidation},
		{errors.New("InvalidAccessKeyId: unauthorized"), CategoryAuthentication},
		{errors.New("something odd"), CategoryUnknown},
	}
	for _, tt := range tests {
		if got := Categorize(tt.err); got != tt.want {
			t.Errorf("Categorize(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
