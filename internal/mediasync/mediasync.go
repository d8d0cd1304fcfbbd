// Package mediasync drives playback control from a Jellyfin-compatible
// media server. It polls the sessions API, finds the session playing the
// configured item, and translates what the player reports into control
// intents: a position jump becomes a seek, pause/unpause become pause and
// resume edges, and a vanished session becomes stop. Every poll also stores
// a position heartbeat, which the engine consumes and discards.
package mediasync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/halolight/ambiplay/internal/control"
	"github.com/halolight/ambiplay/internal/httputil"
	"github.com/halolight/ambiplay/internal/timeutil"
)

const (
	// DefaultInterval is the sessions poll period.
	DefaultInterval = time.Second

	// DefaultDriftThreshold is the reported-vs-expected divergence, in
	// seconds, treated as a user seek. Reported positions lag real playback
	// by whole progress-report periods, so the threshold sits well above
	// that noise.
	DefaultDriftThreshold = 2.0

	// positionTicksPerSecond converts PlayState.PositionTicks (100ns units).
	positionTicksPerSecond = 1e7

	requestTimeout = 5 * time.Second
)

// videoTypes are the NowPlayingItem types worth syncing to.
var videoTypes = map[string]bool{"Movie": true, "Episode": true, "Video": true}

// Config assembles a Syncer.
type Config struct {
	// BaseURL is the media server root, e.g. http://jellyfin.local:8096.
	BaseURL string

	// APIKey is sent in the MediaBrowser authorization header.
	APIKey string

	// ItemID restricts matching to sessions playing this media item.
	// Empty matches any video session.
	ItemID string

	// Device, when set, restricts matching to sessions whose DeviceName
	// equals it (case-insensitive).
	Device string

	// Interval is the poll period; ≤0 selects DefaultInterval.
	Interval time.Duration

	// DriftThreshold is the reseek trigger in seconds; ≤0 selects
	// DefaultDriftThreshold.
	DriftThreshold float64

	// SyncLead skews reseek targets ahead of the reported position, the
	// same amount the engine applies to its starting offset.
	SyncLead time.Duration

	Control  *control.State
	Recorder control.EventRecorder // optional journal
	Client   httputil.HTTPClient   // nil selects a 5s-timeout standard client
	Clock    timeutil.Clock        // nil selects the real clock
}

// Syncer polls the sessions API and folds player state into the control
// state. It is single-goroutine: Run owns all mutable fields.
type Syncer struct {
	baseURL  string
	apiKey   string
	itemID   string
	device   string
	interval time.Duration
	drift    float64
	lead     time.Duration

	state  *control.State
	rec    control.EventRecorder
	client httputil.HTTPClient
	clock  timeutil.Clock

	// poll-to-poll tracking
	hadSession bool
	wasPaused  bool
	lastPos    float64
	lastPoll   time.Time
	failures   int
}

// New validates cfg and returns a Syncer.
func New(cfg Config) (*Syncer, error) {
	if cfg.Control == nil {
		return nil, errors.New("mediasync: control state is required")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("mediasync: base URL is required")
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	drift := cfg.DriftThreshold
	if drift <= 0 {
		drift = DefaultDriftThreshold
	}
	client := cfg.Client
	if client == nil {
		client = httputil.NewStandardClient(&http.Client{Timeout: requestTimeout})
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	return &Syncer{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		itemID:   cfg.ItemID,
		device:   cfg.Device,
		interval: interval,
		drift:    drift,
		lead:     cfg.SyncLead,
		state:    cfg.Control,
		rec:      cfg.Recorder,
		client:   client,
		clock:    clock,
	}, nil
}

// Run polls until the context is cancelled. Fetch failures are logged with
// throttling and never terminate the loop; the media server restarting must
// not take the lights down with it.
func (s *Syncer) Run(ctx context.Context) error {
	log.Printf("mediasync: watching %s (item %q, poll %v, drift %.1fs)",
		s.baseURL, s.itemID, s.interval, s.drift)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.poll(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
		}
	}
}

// session is the subset of a /Sessions element the syncer reads.
type session struct {
	ID             string          `json:"Id"`
	DeviceName     string          `json:"DeviceName"`
	Client         string          `json:"Client"`
	NowPlayingItem *nowPlayingItem `json:"NowPlayingItem"`
	PlayState      playState       `json:"PlayState"`
}

type nowPlayingItem struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
	Type string `json:"Type"`
}

type playState struct {
	IsPaused      bool  `json:"IsPaused"`
	PositionTicks int64 `json:"PositionTicks"`
}

// poll fetches sessions once and applies whatever changed since last time.
func (s *Syncer) poll(ctx context.Context) {
	sessions, err := s.fetchSessions(ctx)
	if err != nil {
		s.failures++
		if s.failures == 1 || s.failures%10 == 0 {
			log.Printf("mediasync: sessions fetch failed (%d in a row): %v", s.failures, err)
		}
		return
	}
	s.failures = 0

	sess := s.pick(sessions)
	if sess == nil {
		if s.hadSession {
			log.Printf("mediasync: playback session gone, stopping")
			s.state.RequestStop()
			s.record(control.KindStop, 0)
		}
		s.hadSession = false
		return
	}

	now := s.clock.Now()
	pos := float64(sess.PlayState.PositionTicks) / positionTicksPerSecond
	playing := !sess.PlayState.IsPaused

	s.state.RequestBeat(control.Beat{
		Position: pos,
		Epoch:    float64(now.UnixNano()) / 1e9,
		HasEpoch: true,
	})

	if !s.hadSession {
		if playing {
			target := s.seekTarget(pos)
			s.state.SetPaused(false)
			s.state.RequestSeek(target)
			s.record(control.KindSeek, target)
			log.Printf("mediasync: session %s playing %q at %.2fs", sess.ID, sess.itemName(), pos)
		} else {
			s.state.SetPaused(true)
			s.record(control.KindPause, 0)
			log.Printf("mediasync: session %s paused %q at %.2fs", sess.ID, sess.itemName(), pos)
		}
	} else if playing {
		if s.wasPaused {
			s.state.SetPaused(false)
			s.record(control.KindResume, 0)
			log.Printf("mediasync: resume at %.2fs", pos)
		}
		// While playing the expected position advances with the wall
		// clock; across a pause it stays frozen where it was reported.
		expected := s.lastPos
		if !s.wasPaused {
			expected += now.Sub(s.lastPoll).Seconds()
		}
		if diff := pos - expected; math.Abs(diff) > s.drift {
			target := s.seekTarget(pos)
			s.state.RequestSeek(target)
			s.record(control.KindSeek, target)
			log.Printf("mediasync: drift %+.2fs, reseek to %.2fs", diff, target)
		}
	} else if !s.wasPaused {
		s.state.SetPaused(true)
		s.record(control.KindPause, 0)
		log.Printf("mediasync: pause at %.2fs", pos)
	}

	s.hadSession = true
	s.wasPaused = !playing
	s.lastPos = pos
	s.lastPoll = now
}

// fetchSessions issues GET /Sessions with the MediaBrowser scheme.
func (s *Syncer) fetchSessions(ctx context.Context) ([]session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/Sessions", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", authHeader(s.apiKey))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sessions: unexpected status %d", resp.StatusCode)
	}

	var sessions []session
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		return nil, fmt.Errorf("sessions: decode: %w", err)
	}
	return sessions, nil
}

// pick returns the first session playing video that passes the item and
// device filters, or nil. The device filter accepts either the session's
// DeviceName or its Client string.
func (s *Syncer) pick(sessions []session) *session {
	for i := range sessions {
		sess := &sessions[i]
		item := sess.NowPlayingItem
		if item == nil || !videoTypes[item.Type] {
			continue
		}
		if s.itemID != "" && item.ID != s.itemID {
			continue
		}
		if s.device != "" &&
			!strings.EqualFold(sess.DeviceName, s.device) &&
			!strings.EqualFold(sess.Client, s.device) {
			continue
		}
		return sess
	}
	return nil
}

// seekTarget applies the sync lead to a reported position.
func (s *Syncer) seekTarget(pos float64) float64 {
	target := pos + s.lead.Seconds()
	if target < 0 {
		target = 0
	}
	return target
}

func (s *Syncer) record(kind string, value float64) {
	if s.rec == nil {
		return
	}
	// Journal failures must not interrupt the sync path.
	_ = s.rec.RecordEvent(kind, value, "")
}

func (sess *session) itemName() string {
	if sess.NowPlayingItem == nil {
		return ""
	}
	return sess.NowPlayingItem.Name
}

// authHeader builds the MediaBrowser authorization scheme Jellyfin expects
// on API-key requests.
func authHeader(token string) string {
	return fmt.Sprintf(
		`MediaBrowser Client="ambiplay", Device="ambiplay", DeviceId="ambiplay-001", Version="1.0", Token="%s"`,
		token)
}
