// Package facade implements the Engine Facade (C7): the single
// Go-level entry point cmd/imeserve and the FFI export shim both call
// through. It owns config load, the Dictionary Store, Ranker, LLM
// Bridge, and User Dictionary, wiring them into one Session per the
// "mostly single-threaded per session" model -- an Engine is exactly
// the amount of shared state one host process needs.
//
// Grounded on cmd/wordserve/main.go's "main calls other packages to
// initialize... and only manages the flow" wiring style, generalized
// from a one-shot CLI/server bootstrap into a re-initializable Engine
// a host can ime_init/ime_shutdown/ime_init again across its lifetime.
package facade

import (
	"sync"

	"github.com/charmbracelet/log"

	"github.com/maidos/ime-engine/internal/logger"
	"github.com/maidos/ime-engine/pkg/config"
	"github.com/maidos/ime-engine/pkg/diag"
	"github.com/maidos/ime-engine/pkg/dictionary"
	engerrors "github.com/maidos/ime-engine/pkg/errors"
	"github.com/maidos/ime-engine/pkg/llmbridge"
	"github.com/maidos/ime-engine/pkg/rank"
	"github.com/maidos/ime-engine/pkg/scheme"
	"github.com/maidos/ime-engine/pkg/session"
	"github.com/maidos/ime-engine/pkg/userdict"
)

// Version is the engine's release identifier, returned by GetVersion.
const Version = "0.1.0"

// Engine is the facade's single long-lived object. Zero value is a
// valid, uninitialized Engine; Init must run before any other method.
type Engine struct {
	mu sync.Mutex

	initialized bool
	configPath  string
	cfg         *config.Config

	store    *dictionary.Store
	ranker   *rank.Ranker
	bridge   *llmbridge.Bridge
	userDict *userdict.Dict
	sess     *session.Session
	diag     *diag.Recorder

	log *log.Logger
}

// New returns an uninitialized Engine.
func New() *Engine {
	return &Engine{log: logger.New("facade")}
}

// Init loads config and dictionaries and builds the session. Calling
// Init twice without an intervening Shutdown fails with
// AlreadyInitialized, per §6's idempotent-safe contract.
func (e *Engine) Init(configPath string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initialized {
		return engerrors.ErrAlreadyInitialized
	}

	cfg, err := config.InitConfig(configPath)
	if err != nil {
		return engerrors.Wrap(engerrors.KindDictionaryLoad, "load config", err)
	}

	store, err := dictionary.Load(dictionary.Config{
		SourceDir:         cfg.Dict.SourceDir,
		CacheDir:          cfg.Dict.CacheDir,
		MaxResidentChunks: cfg.Dict.MaxResidentChunks,
		ConversionPath:    cfg.Dict.ConversionPath,
		ChunkSize:         cfg.Dict.ChunkSize,
	})
	if err != nil {
		return engerrors.Wrap(engerrors.KindDictionaryLoad, "load dictionaries", err)
	}
	if !anySchemeAvailable(store) {
		return engerrors.New(engerrors.KindDictionaryLoad, "no scheme available after load")
	}

	rankCfg := rank.DefaultConfig()
	if cfg.Scheme.MaxCandidates > 0 {
		rankCfg.DisplayLimit = cfg.Scheme.MaxCandidates
	}
	ranker := rank.New(rankCfg)
	diagRecorder := diag.NewWithWindows(cfg.Diag.LatencyWindow, cfg.Diag.LlmHistoryWindow)
	if cfg.Diag.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	var bridge *llmbridge.Bridge
	if cfg.LLM.Enabled {
		bridge = llmbridge.New(llmbridge.Config{
			Endpoint:      cfg.LLM.Endpoint,
			Transport:     cfg.LLM.Transport,
			SocketPath:    cfg.LLM.SocketPath,
			TimeoutMS:     cfg.LLM.TimeoutMS,
			TopK:          cfg.LLM.TopK,
			MaxContextLen: cfg.LLM.MaxContextLen,
			Diag:          diagRecorder,
		})
	}

	userDict, err := userdict.Open(cfg.UserDict)
	if err != nil {
		return engerrors.Wrap(engerrors.KindUserDictIO, "open user dictionary", err)
	}

	defaultScheme, ok := dictionary.ParseScheme(cfg.Scheme.Default)
	if !ok {
		defaultScheme = dictionary.English
	}

	sess, err := session.New(session.Config{
		Store:             store,
		Ranker:            ranker,
		Bridge:            bridge,
		UserDict:          userDict,
		DefaultScheme:     defaultScheme,
		CompositionCap:    cfg.Scheme.CompositionCap,
		LLMEnabled:        cfg.LLM.Enabled,
		SyllableValidator: dictionaryBackedValidator(store),
		Diag:              diagRecorder,
	})
	if err != nil {
		userDict.Close()
		return engerrors.Wrap(engerrors.KindInternal, "construct session", err)
	}

	e.configPath = configPath
	e.cfg = cfg
	e.store = store
	e.ranker = ranker
	e.bridge = bridge
	e.userDict = userDict
	e.sess = sess
	e.diag = diagRecorder
	e.initialized = true
	return nil
}

// Shutdown releases every resource Init acquired: cancels any pending
// LLM request, flushes the user dictionary, and marks the Engine
// uninitialized so a later Init can start fresh.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return
	}
	e.sess.Cancel()
	if err := e.userDict.Close(); err != nil {
		e.log.Warn("failed to close user dictionary cleanly", "err", err)
	}
	e.store = nil
	e.ranker = nil
	e.bridge = nil
	e.userDict = nil
	e.sess = nil
	e.diag = nil
	e.cfg = nil
	e.initialized = false
}

func (e *Engine) requireInit() error {
	if !e.initialized {
		return engerrors.ErrNotInitialized
	}
	return nil
}

// ProcessKey feeds one key event to the active session.
func (e *Engine) ProcessKey(vkey session.VKey, mods session.Modifiers) (string, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireInit(); err != nil {
		return "", 0, err
	}
	return e.sess.ProcessKey(vkey, mods)
}

// GetCandidate reads the index-th candidate of the active list.
func (e *Engine) GetCandidate(index int) (rank.Candidate, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireInit(); err != nil {
		return rank.Candidate{}, err
	}
	return e.sess.GetCandidate(index)
}

// Commit finalizes the candidate at index.
func (e *Engine) Commit(index int) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireInit(); err != nil {
		return "", err
	}
	return e.sess.Commit(index)
}

// Cancel discards the in-progress composition.
func (e *Engine) Cancel() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireInit(); err != nil {
		return err
	}
	e.sess.Cancel()
	return nil
}

// GetScheme reports the session's active scheme.
func (e *Engine) GetScheme() (dictionary.Scheme, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireInit(); err != nil {
		return 0, err
	}
	return e.sess.Scheme(), nil
}

// SetScheme switches the active scheme, discarding any in-progress
// composition (§4's scheme data model note).
func (e *Engine) SetScheme(s dictionary.Scheme) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireInit(); err != nil {
		return err
	}
	if !e.store.IsAvailable(s) {
		return engerrors.New(engerrors.KindInvalidScheme, "scheme unavailable: "+s.String())
	}
	return e.sess.SetScheme(s)
}

// ReloadDictionaries rebuilds the Dictionary Store's caches from
// dictDir and swaps it into the session. Refused mid-composition, per
// §7's BusyComposing policy.
func (e *Engine) ReloadDictionaries(dictDir string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireInit(); err != nil {
		return err
	}

	newStore, err := dictionary.Load(dictionary.Config{
		SourceDir:         dictDir,
		CacheDir:          e.cfg.Dict.CacheDir,
		MaxResidentChunks: e.cfg.Dict.MaxResidentChunks,
		ConversionPath:    e.cfg.Dict.ConversionPath,
		ChunkSize:         e.cfg.Dict.ChunkSize,
	})
	if err != nil {
		return engerrors.Wrap(engerrors.KindDictionaryLoad, "reload dictionaries", err)
	}
	if err := e.sess.SetStore(newStore); err != nil {
		return err
	}
	e.cfg.Dict.SourceDir = dictDir
	e.store = newStore
	return nil
}

// UserDictAdd inserts or refreshes a user dictionary entry.
func (e *Engine) UserDictAdd(s dictionary.Scheme, key, value string, tags []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireInit(); err != nil {
		return err
	}
	return e.userDict.Add(s, key, value, tags)
}

// UserDictRemove deletes a user dictionary entry.
func (e *Engine) UserDictRemove(s dictionary.Scheme, key, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireInit(); err != nil {
		return err
	}
	return e.userDict.Remove(s, key, value)
}

// UserDictExport produces a deterministic JSON snapshot.
func (e *Engine) UserDictExport() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireInit(); err != nil {
		return nil, err
	}
	return e.userDict.Export()
}

// UserDictImport accepts a raw JSON payload or a single-member zip
// archive, per §4.6.
func (e *Engine) UserDictImport(data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireInit(); err != nil {
		return err
	}
	return e.userDict.ImportArchive(data)
}

// SetLLMEnabled toggles the LLM re-rank bridge at runtime.
func (e *Engine) SetLLMEnabled(enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireInit(); err != nil {
		return err
	}
	if enabled && e.bridge == nil {
		e.bridge = llmbridge.New(llmbridge.Config{
			Endpoint:      e.cfg.LLM.Endpoint,
			Transport:     e.cfg.LLM.Transport,
			SocketPath:    e.cfg.LLM.SocketPath,
			TimeoutMS:     e.cfg.LLM.TimeoutMS,
			TopK:          e.cfg.LLM.TopK,
			MaxContextLen: e.cfg.LLM.MaxContextLen,
			Diag:          e.diag,
		})
	}
	e.cfg.LLM.Enabled = enabled
	e.sess.SetLLMEnabled(enabled)
	return nil
}

// SetLLMTimeout updates the LLM bridge's default deadline at runtime.
// A no-op (not an error) if the bridge was never configured, since
// there's nothing to time out.
func (e *Engine) SetLLMTimeout(timeoutMS int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireInit(); err != nil {
		return err
	}
	if e.bridge == nil {
		return nil
	}
	e.cfg.LLM.TimeoutMS = timeoutMS
	e.bridge.SetTimeoutMS(timeoutMS)
	return nil
}

// GetVersion returns the engine's version string.
func (e *Engine) GetVersion() string {
	return Version
}

// Health returns the C8 health probe snapshot. Callable whether or not
// the engine is initialized, so a host can distinguish "not yet
// initialized" from "initialized but something's wrong" without a
// separate error path.
func (e *Engine) Health() diag.HealthSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return diag.New().Snapshot(false, "", nil)
	}
	return e.diag.Snapshot(true, e.sess.Scheme().String(), e.store.Stats())
}

func anySchemeAvailable(store *dictionary.Store) bool {
	for _, s := range dictionary.AllSchemes() {
		if store.IsAvailable(s) {
			return true
		}
	}
	return false
}

// dictionaryBackedValidator lets Pinyin segmentation consult the live
// Dictionary Store instead of falling back to the built-in syllable
// tables scheme.New uses when no validator is supplied. The other
// schemes' processors do not use a validator.
func dictionaryBackedValidator(store *dictionary.Store) scheme.SyllableValidator {
	return func(s dictionary.Scheme, key string) bool {
		return store.HasKey(s, key)
	}
}
