package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"go.uber.org/zap"
)

const (
	DefaultMailbox = "INBOX"
	DefaultLabel   = "codeur"
	defaultPort    = 993
)

// Config describes the IMAP account. Password is resolved by the caller.
type Config struct {
	Host         string   `mapstructure:"host"`
	Port         int      `mapstructure:"port"`
	Username     string   `mapstructure:"username"`
	Password     string   `mapstructure:"password"`
	PasswordFile string   `mapstructure:"password-file"`
	Mailbox      string   `mapstructure:"mailbox"`
	Label        string   `mapstructure:"label"`
	Insecure     bool     `mapstructure:"insecure"`
	Senders      []string `mapstructure:"senders"`
	Subjects     []string `mapstructure:"subjects"`
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.Mailbox == "" {
		c.Mailbox = DefaultMailbox
	}
	if c.Label == "" {
		c.Label = DefaultLabel
	}
	return c
}

// imapClient is the subset of *client.Client used by IMAP.
type imapClient interface {
	UidSearch(criteria *imap.SearchCriteria) ([]uint32, error)
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	UidStore(seqset *imap.SeqSet, item imap.StoreItem, value interface{}, ch chan *imap.Message) error
	UidMove(seqset *imap.SeqSet, dest string) error
	Expunge(ch chan uint32) error
	Logout() error
}

// IMAP is a mailbox backed by a selected IMAP folder. Messages are addressed by UID.
// The underlying connection is not safe for concurrent commands, so calls are serialized.
type IMAP struct {
	mu     sync.Mutex
	c      imapClient
	logger *zap.Logger
}

// Dial connects, logs in and selects the configured folder.
func Dial(ctx context.Context, cfg Config, logger *zap.Logger) (*IMAP, error) {
	cfg = cfg.withDefaults()
	if cfg.Host == "" {
		return nil, errors.New("mail host is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	var (
		c   *client.Client
		err error
	)
	if cfg.Insecure {
		c, err = client.Dial(addr)
	} else {
		c, err = client.DialTLS(addr, &tls.Config{ServerName: cfg.Host})
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}

	if err := c.Login(cfg.Username, cfg.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("logging in as %s: %w", cfg.Username, err)
	}

	if _, err := c.Select(cfg.Mailbox, false); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("selecting %s: %w", cfg.Mailbox, err)
	}

	logger.Debug("connected to mailbox",
		zap.String("addr", addr),
		zap.String("mailbox", cfg.Mailbox),
	)

	return newIMAP(c, logger), nil
}

func newIMAP(c imapClient, logger *zap.Logger) *IMAP {
	return &IMAP{c: c, logger: logger}
}

// ListUnread returns the UIDs of unseen messages in server order.
func (m *IMAP) ListUnread(ctx context.Context) ([]uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	uids, err := m.c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("searching unread messages: %w", err)
	}
	return uids, nil
}

// Fetch returns the raw message without setting \Seen. It returns nil, nil
// when the message no longer exists.
func (m *IMAP) Fetch(ctx context.Context, id uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- m.c.UidFetch(uidSet(id), items, messages)
	}()

	var raw []byte
	var readErr error
	for msg := range messages {
		if msg == nil || raw != nil {
			continue
		}
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, readErr = io.ReadAll(body)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetching message %d: %w", id, err)
	}
	if readErr != nil {
		return nil, fmt.Errorf("reading message %d: %w", id, readErr)
	}
	return raw, nil
}

// MarkSeen sets the \Seen flag.
func (m *IMAP) MarkSeen(ctx context.Context, id uint32) error {
	return m.addFlag(ctx, id, imap.SeenFlag)
}

// MoveToLabel moves the message to the label folder.
func (m *IMAP) MoveToLabel(ctx context.Context, id uint32, label string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.c.UidMove(uidSet(id), label); err != nil {
		return fmt.Errorf("moving message %d to %s: %w", id, label, err)
	}
	return nil
}

// Delete flags the message as deleted and expunges the folder.
func (m *IMAP) Delete(ctx context.Context, id uint32) error {
	if err := m.addFlag(ctx, id, imap.DeletedFlag); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.c.Expunge(nil); err != nil {
		return fmt.Errorf("expunging message %d: %w", id, err)
	}
	return nil
}

// Close logs out.
func (m *IMAP) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.c.Logout()
}

func (m *IMAP) addFlag(ctx context.Context, id uint32, flag string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := m.c.UidStore(uidSet(id), item, []interface{}{flag}, nil); err != nil {
		return fmt.Errorf("flagging message %d as %s: %w", id, flag, err)
	}
	return nil
}

func uidSet(id uint32) *imap.SeqSet {
	set := new(imap.SeqSet)
	set.AddNum(id)
	return set
}
