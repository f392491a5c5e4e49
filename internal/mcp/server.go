// Package mcp exposes an unlocked vault to AI agents over the Model Context
// Protocol. Agents can search and inspect entries but never receive a
// plaintext secret: secret properties are only listed by name or masked.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/forest6511/vaultsync/pkg/search"
	"github.com/forest6511/vaultsync/pkg/source"
	"github.com/forest6511/vaultsync/pkg/storage"
	"github.com/forest6511/vaultsync/pkg/vault"
)

// Version is reported to MCP clients.
const Version = "0.1.0"

// Server is the MCP server over one vault source.
type Server struct {
	server *mcp.Server
	src    *source.Source
	index  *search.Index
	logger zerolog.Logger

	// mu serialises vault access from concurrent tool calls.
	mu sync.Mutex
	v  *vault.Vault
}

// ServerOptions configures NewServer.
type ServerOptions struct {
	// Source must be unlocked.
	Source *source.Source
	// ScoreStore keeps search scores. Defaults to memory.
	ScoreStore storage.Interface
	// SearchThreshold overrides search.DefaultThreshold when set.
	SearchThreshold float64
	Logger          *zerolog.Logger
}

// NewServer prepares the search index and registers the tools.
func NewServer(ctx context.Context, opts *ServerOptions) (*Server, error) {
	if opts == nil || opts.Source == nil {
		return nil, errors.New("mcp: a vault source is required")
	}
	v, err := opts.Source.Vault()
	if err != nil {
		return nil, fmt.Errorf("mcp: %w", err)
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	searchOpts := []search.Option{search.WithLogger(logger)}
	if opts.SearchThreshold > 0 {
		searchOpts = append(searchOpts, search.WithThreshold(opts.SearchThreshold))
	}
	index := search.NewIndex([]*vault.Vault{v}, opts.ScoreStore, searchOpts...)
	if err := index.Prepare(ctx); err != nil {
		return nil, fmt.Errorf("mcp: failed to prepare search index: %w", err)
	}

	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{Name: "vaultsync", Version: Version}, nil),
		src:    opts.Source,
		index:  index,
		logger: logger,
		v:      v,
	}
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "entry_search",
		Description: "Fuzzy search entries by title, username or URL. Prefix words with # to filter by tag. Returns metadata only, never secret values.",
	}, s.handleEntrySearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "entry_search_url",
		Description: "Find entries for a website URL, best match first. Returns metadata only.",
	}, s.handleEntrySearchURL)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "entry_get",
		Description: "Get the metadata of an entry by ID. Secret properties are listed by name without values.",
	}, s.handleEntryGet)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "entry_get_masked",
		Description: "Get a masked version of a property value (e.g. '****WXYZ') to verify its format without exposing it.",
	}, s.handleEntryGetMasked)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "group_list",
		Description: "List groups with their parent IDs and entry counts.",
	}, s.handleGroupList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "entry_record_use",
		Description: "Record that an entry was used for a URL so future URL searches rank it higher.",
	}, s.handleEntryRecordUse)
}

// Run serves over stdio until ctx is done, then locks the source.
func (s *Server) Run(ctx context.Context) error {
	defer s.src.Lock()
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Close locks the source.
func (s *Server) Close() error {
	s.src.Lock()
	return nil
}
