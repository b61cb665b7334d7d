package mailbox

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/emersion/go-imap"
	"go.uber.org/zap"
)

type fakeClient struct {
	unread   []uint32
	messages map[uint32][]byte
	stored   []string
	moved    map[uint32]string
	expunged int
	failMove bool
}

func (f *fakeClient) UidSearch(criteria *imap.SearchCriteria) ([]uint32, error) {
	if len(criteria.WithoutFlags) != 1 || criteria.WithoutFlags[0] != imap.SeenFlag {
		return nil, errors.New("unexpected criteria")
	}
	return f.unread, nil
}

func (f *fakeClient) UidFetch(seqset *imap.SeqSet, _ []imap.FetchItem, ch chan *imap.Message) error {
	defer close(ch)
	for _, set := range seqset.Set {
		raw, ok := f.messages[set.Start]
		if !ok {
			continue
		}
		ch <- &imap.Message{
			Uid:  set.Start,
			Body: map[*imap.BodySectionName]imap.Literal{{}: bytes.NewBuffer(raw)},
		}
	}
	return nil
}

func (f *fakeClient) UidStore(seqset *imap.SeqSet, _ imap.StoreItem, value interface{}, _ chan *imap.Message) error {
	for _, flag := range value.([]interface{}) {
		f.stored = append(f.stored, seqset.String()+" "+flag.(string))
	}
	return nil
}

func (f *fakeClient) UidMove(seqset *imap.SeqSet, dest string) error {
	if f.failMove {
		return errors.New("no such mailbox")
	}
	if f.moved == nil {
		f.moved = map[uint32]string{}
	}
	f.moved[seqset.Set[0].Start] = dest
	return nil
}

func (f *fakeClient) Expunge(chan uint32) error {
	f.expunged++
	return nil
}

func (f *fakeClient) Logout() error { return nil }

func TestIMAPListAndFetch(t *testing.T) {
	fake := &fakeClient{
		unread:   []uint32{7, 9},
		messages: map[uint32][]byte{7: []byte("Subject: hi\r\n\r\nbody")},
	}
	box := newIMAP(fake, zap.NewNop())
	ctx := context.Background()

	ids, err := box.ListUnread(ctx)
	if err != nil {
		t.Fatalf("ListUnread returned error: %v", err)
	}
	if len(ids) != 2 || ids[0] != 7 || ids[1] != 9 {
		t.Fatalf("unexpected ids: %v", ids)
	}

	raw, err := box.Fetch(ctx, 7)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if string(raw) != "Subject: hi\r\n\r\nbody" {
		t.Fatalf("unexpected raw message: %q", raw)
	}

	missing, err := box.Fetch(ctx, 9)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for vanished message, got %q", missing)
	}
}

func TestIMAPMutations(t *testing.T) {
	fake := &fakeClient{}
	box := newIMAP(fake, zap.NewNop())
	ctx := context.Background()

	if err := box.MarkSeen(ctx, 3); err != nil {
		t.Fatalf("MarkSeen returned error: %v", err)
	}
	if err := box.MoveToLabel(ctx, 3, "codeur"); err != nil {
		t.Fatalf("MoveToLabel returned error: %v", err)
	}
	if err := box.Delete(ctx, 4); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	want := []string{"3 " + imap.SeenFlag, "4 " + imap.DeletedFlag}
	if len(fake.stored) != len(want) {
		t.Fatalf("expected %d store commands, got %v", len(want), fake.stored)
	}
	for i := range want {
		if fake.stored[i] != want[i] {
			t.Fatalf("store %d: expected %q, got %q", i, want[i], fake.stored[i])
		}
	}
	if fake.moved[3] != "codeur" {
		t.Fatalf("expected message 3 moved to codeur, got %v", fake.moved)
	}
	if fake.expunged != 1 {
		t.Fatalf("expected one expunge, got %d", fake.expunged)
	}
}

func TestIMAPMoveError(t *testing.T) {
	box := newIMAP(&fakeClient{failMove: true}, zap.NewNop())

	if err := box.MoveToLabel(context.Background(), 1, "missing"); err == nil {
		t.Fatalf("expected error when move fails")
	}
}

func TestIMAPCancelledContext(t *testing.T) {
	fake := &fakeClient{}
	box := newIMAP(fake, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := box.ListUnread(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := box.MarkSeen(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(fake.stored) != 0 {
		t.Fatalf("expected no commands after cancellation, got %v", fake.stored)
	}
}
