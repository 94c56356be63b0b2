// Package register announces the server to the hytale.one directory service.
//
// Registration is a single best-effort attempt: it runs in the background,
// never retries and never affects startup. The only state it owns is the
// server identifier, which is generated once and stored before any request
// is sent with it.
package register

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hytaleone/hyquery/internal/models"
	"github.com/hytaleone/hyquery/internal/vars"
	"github.com/rs/zerolog/log"
)

const (
	// Endpoint is the directory service registration URL.
	Endpoint = "https://hytale.one/api/plugin/query/register"

	// Timeout bounds both connection setup and the whole request.
	Timeout = 10 * time.Second

	// IDPrefix precedes the 32 hex characters of a generated server identifier.
	IDPrefix = "hyone_"

	maxBodySize = 1 << 20
)

// IdentityStore reads and durably writes the server identifier.
type IdentityStore interface {
	ServerID() (string, error)
	SaveServerID(id string) error
}

// HistoryStore records completed attempts.
type HistoryStore interface {
	RecordRegistration(reg models.Registration) error
}

// SnapshotSource returns the current server state.
type SnapshotSource interface {
	Snapshot() models.Snapshot
}

// AddrResolver returns the server's bound non-loopback address.
type AddrResolver func() (*net.UDPAddr, error)

// Config is the registration part of the application configuration.
type Config struct {
	// ServerID overrides the stored identifier when not blank.
	ServerID string
	// AutoRegister enables the startup attempt made by Start.
	AutoRegister bool
}

// Registrar performs registration attempts.
type Registrar struct {
	ids      IdentityStore
	source   SnapshotSource
	history  HistoryStore
	resolve  AddrResolver
	client   *http.Client
	endpoint string
	wg       sync.WaitGroup
}

// Option configures a Registrar.
type Option func(*Registrar)

// WithEndpoint replaces the directory service URL.
func WithEndpoint(url string) Option {
	return func(r *Registrar) { r.endpoint = url }
}

// WithTimeout replaces the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Registrar) { r.client = newHTTPClient(d) }
}

// WithHistory records every completed attempt in h.
func WithHistory(h HistoryStore) Option {
	return func(r *Registrar) { r.history = h }
}

// WithAddrResolver sets how the advertised host and port are found.
func WithAddrResolver(fn AddrResolver) Option {
	return func(r *Registrar) { r.resolve = fn }
}

// New creates a Registrar.
func New(ids IdentityStore, source SnapshotSource, opts ...Option) *Registrar {
	r := &Registrar{
		ids:      ids,
		source:   source,
		client:   newHTTPClient(Timeout),
		endpoint: Endpoint,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// newHTTPClient applies d to the dial, the TLS handshake and the whole exchange.
func newHTTPClient(d time.Duration) *http.Client {
	return &http.Client{
		Timeout: d,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         (&net.Dialer{Timeout: d}).DialContext,
			TLSHandshakeTimeout: d,
			DisableKeepAlives:   true,
		},
	}
}

// NewServerID returns IDPrefix followed by 128 random bits in lowercase hex.
func NewServerID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return IDPrefix + hex.EncodeToString(b[:]), nil
}

// EnsureServerID returns the identifier to register with, generating and
// storing a new one when neither cfg nor the store has one. cfg.ServerID is
// only assigned after the store accepted the new value.
func (r *Registrar) EnsureServerID(cfg *Config) (string, error) {
	if id := strings.TrimSpace(cfg.ServerID); id != "" {
		return id, nil
	}

	stored, err := r.ids.ServerID()
	if err != nil {
		return "", fmt.Errorf("load server id: %w", err)
	}
	if id := strings.TrimSpace(stored); id != "" {
		cfg.ServerID = id
		return id, nil
	}

	id, err := NewServerID()
	if err != nil {
		return "", fmt.Errorf("generate server id: %w", err)
	}
	if err := r.ids.SaveServerID(id); err != nil {
		return "", fmt.Errorf("save server id: %w", err)
	}
	cfg.ServerID = id

	log.Info().Str("server_id", id).Msg("Generated server id")
	return id, nil
}

// Start ensures an identifier exists and sends one registration in the
// background. It returns before the request completes and does nothing when
// cfg.AutoRegister is false.
func (r *Registrar) Start(cfg *Config) {
	if !cfg.AutoRegister {
		log.Info().Msg("Server list registration is disabled")
		return
	}

	id, err := r.EnsureServerID(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("Server list registration skipped")
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.Register(context.Background(), id)
	}()
}

// Wait blocks until background attempts started by Start have finished.
func (r *Registrar) Wait() {
	r.wg.Wait()
}

// Register performs one attempt synchronously, logs the outcome and records it.
func (r *Registrar) Register(ctx context.Context, serverID string) Result {
	res := r.send(ctx, serverID)
	res.log(serverID)

	if r.history != nil {
		if err := r.history.RecordRegistration(res.record(serverID)); err != nil {
			log.Error().Err(err).Msg("Failed to record registration attempt")
		}
	}

	return res
}

func (r *Registrar) send(ctx context.Context, serverID string) Result {
	body, err := json.Marshal(r.payload(serverID))
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", vars.UserAgent())

	resp, err := r.client.Do(req)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return Result{Outcome: OutcomeFailed, StatusCode: resp.StatusCode}
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		log.Debug().Err(err).Msg("Failed to read registration response body")
		return Result{Outcome: OutcomeUnknown, StatusCode: resp.StatusCode}
	}

	res := ParseResponse(respBody)
	res.StatusCode = resp.StatusCode
	return res
}

// payload describes the server. host is null and port falls back to
// models.DefaultPort when the bound address cannot be resolved.
func (r *Registrar) payload(serverID string) models.RegistrationRequest {
	snap := r.source.Snapshot()

	req := models.RegistrationRequest{
		ServerID:        serverID,
		ServerName:      snap.ServerName,
		MOTD:            snap.MOTD,
		Port:            models.DefaultPort,
		MaxPlayers:      snap.MaxPlayers,
		CurrentPlayers:  snap.CurrentPlayers,
		Version:         snap.Version,
		ProtocolVersion: snap.ProtocolVersion,
	}

	if r.resolve == nil {
		return req
	}
	addr, err := r.resolve()
	if err != nil || addr == nil {
		log.Debug().Err(err).Msg("Bound address unavailable for registration")
		return req
	}
	if addr.IP != nil {
		host := addr.IP.String()
		req.Host = &host
	}
	if addr.Port != 0 {
		req.Port = addr.Port
	}

	return req
}
