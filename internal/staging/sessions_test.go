package staging

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

func newSessionsFixture() (*Sessions, *fakeSessionRepo, *fakeGenerationRepo) {
	sessions := newFakeSessionRepo()
	gens := newFakeGenerationRepo()
	return NewSessions(sessions, gens, zerolog.Nop()), sessions, gens
}

func TestCreateSession(t *testing.T) {
	svc, _, _ := newSessionsFixture()
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "u1", "https://img.example.com/room.jpg", domain.RoomStateGenerateEmpty)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if session.ID == "" {
		t.Error("session must get an id")
	}
	if session.SelectedEmptyRoomURL != "" {
		t.Errorf("selected empty room = %q, want empty for generate_empty", session.SelectedEmptyRoomURL)
	}
}

func TestCreateSessionAlreadyEmpty(t *testing.T) {
	svc, _, _ := newSessionsFixture()

	session, err := svc.CreateSession(context.Background(), "u1", "https://img.example.com/empty.jpg", domain.RoomStateAlreadyEmpty)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	// The original photo doubles as the selected empty-room image.
	if session.SelectedEmptyRoomURL != "https://img.example.com/empty.jpg" {
		t.Errorf("selected empty room = %q, want the original url", session.SelectedEmptyRoomURL)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	svc, _, _ := newSessionsFixture()
	ctx := context.Background()

	var verr *domain.ValidationError
	if _, err := svc.CreateSession(ctx, "u1", "  ", domain.RoomStateGenerateEmpty); !errors.As(err, &verr) {
		t.Errorf("blank url error = %v, want ValidationError", err)
	}
	if _, err := svc.CreateSession(ctx, "u1", "https://img.example.com/r.jpg", "half_empty"); !errors.As(err, &verr) {
		t.Errorf("bad room state error = %v, want ValidationError", err)
	}
}

func TestSelectEmptyRoom(t *testing.T) {
	svc, _, _ := newSessionsFixture()
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "u1", "https://img.example.com/room.jpg", domain.RoomStateGenerateEmpty)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	updated, err := svc.SelectEmptyRoom(ctx, "u1", session.ID, "https://cdn.example.com/empty-2.png")
	if err != nil {
		t.Fatalf("SelectEmptyRoom() error = %v", err)
	}
	if updated.SelectedEmptyRoomURL != "https://cdn.example.com/empty-2.png" {
		t.Errorf("selected empty room = %q", updated.SelectedEmptyRoomURL)
	}

	if _, err := svc.SelectEmptyRoom(ctx, "u2", session.ID, "https://cdn.example.com/x.png"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("cross-user select error = %v, want ErrNotFound", err)
	}
	var verr *domain.ValidationError
	if _, err := svc.SelectEmptyRoom(ctx, "u1", session.ID, ""); !errors.As(err, &verr) {
		t.Errorf("blank url error = %v, want ValidationError", err)
	}
}

func TestListSessionsWithHistory(t *testing.T) {
	svc, _, gens := newSessionsFixture()
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "u1", "https://img.example.com/room.jpg", domain.RoomStateGenerateEmpty)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if _, err := svc.CreateSession(ctx, "u2", "https://img.example.com/other.jpg", domain.RoomStateGenerateEmpty); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	seed := []struct {
		genType domain.GenerationType
		status  domain.GenerationStatus
	}{
		{domain.GenerationTypeEmptyRoom, domain.GenerationStatusCompleted},
		{domain.GenerationTypeStaging, domain.GenerationStatusFailed},
		{domain.GenerationTypeStaging, domain.GenerationStatusCompleted},
	}
	for i, s := range seed {
		if _, err := gens.AppendAttempt(ctx, &domain.Generation{
			ID:              string(rune('a' + i)),
			SessionID:       session.ID,
			Type:            s.genType,
			Status:          s.status,
			OutputImageURLs: []string{},
		}); err != nil {
			t.Fatalf("seed generation: %v", err)
		}
	}

	histories, err := svc.ListSessionsWithHistory(ctx, "u1")
	if err != nil {
		t.Fatalf("ListSessionsWithHistory() error = %v", err)
	}
	if len(histories) != 1 {
		t.Fatalf("histories = %d, want 1 (other user's session excluded)", len(histories))
	}
	h := histories[0]
	if len(h.EmptyRoom) != 1 || len(h.Staging) != 2 {
		t.Fatalf("partition = (%d empty, %d staging), want (1, 2)", len(h.EmptyRoom), len(h.Staging))
	}
	// Newest attempt first within each partition; the failed attempt kept
	// its number slot.
	if h.Staging[0].Number != 2 || h.Staging[1].Number != 1 {
		t.Errorf("staging numbers = (%d, %d), want (2, 1)", h.Staging[0].Number, h.Staging[1].Number)
	}
	if h.Staging[1].Status != domain.GenerationStatusFailed {
		t.Errorf("first staging attempt status = %s, want failed", h.Staging[1].Status)
	}
}
