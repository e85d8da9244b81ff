package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"

	"golang.org/x/term"

	"github.com/fieldops/fieldtask/internal/api"
	"github.com/fieldops/fieldtask/internal/kv"
	"github.com/fieldops/fieldtask/internal/offline"
)

// app is the set of components one command works with.
type app struct {
	storage kv.Storage
	store   *offline.LocalStore
	manager *offline.Manager
	client  *api.Client
}

// openApp opens the configured store and builds a manager over it. The
// manager starts offline; commands that talk to the server probe first.
func openApp(logger *log.Logger, observer offline.Observer) (*app, error) {
	if logger == nil {
		logger = cliLogger()
	}

	path, err := cfg.StorePath()
	if err != nil {
		return nil, err
	}
	storage, err := kv.Open(cfg.Store.Backend, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	store := offline.NewLocalStore(storage, nil, logger)

	a := &app{storage: storage, store: store}
	opts := offline.Options{
		Observer: observer,
		UserID:   cfg.User.ID,
		Logger:   logger,
	}

	if cfg.Server.URL != "" {
		client, err := api.New(api.Config{
			BaseURL:     cfg.Server.URL,
			TokenSource: store.TokenSource(cfg.Server.Token),
			Timeout:     cfg.Server.Timeout,
		})
		if err != nil {
			_ = storage.Close()
			return nil, err
		}
		a.client = client
		opts.Client = client
	}

	m, err := offline.NewManager(store, opts)
	if err != nil {
		_ = storage.Close()
		return nil, err
	}
	a.manager = m
	return a, nil
}

func (a *app) Close() error {
	return a.storage.Close()
}

// cliLogger keeps engine logging off the terminal unless --verbose.
func cliLogger() *log.Logger {
	if verbose {
		return log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return log.New(io.Discard, "", 0)
}

// resolveTaskID accepts a full id or a unique prefix of one, so temporary
// ids can be typed as shown by 'ft task list'.
func resolveTaskID(m *offline.Manager, arg string) (string, error) {
	if _, ok := m.Task(arg); ok {
		return arg, nil
	}

	var matches []string
	for _, t := range m.Tasks() {
		if strings.HasPrefix(t.ID, arg) {
			matches = append(matches, t.ID)
		}
	}
	sort.Strings(matches)

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", offline.ErrTaskNotFound, arg)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("ambiguous task id %q matches %s", arg, strings.Join(matches, ", "))
	}
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
