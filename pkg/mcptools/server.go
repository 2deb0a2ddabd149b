// Package mcptools exposes the formula engine as Model Context Protocol
// tools so assistants can list, describe and run calculations.
package mcptools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Mindburn-Labs/assetrisk/pkg/config"
	"github.com/Mindburn-Labs/assetrisk/pkg/formula"
	"github.com/Mindburn-Labs/assetrisk/pkg/risk"
	"github.com/Mindburn-Labs/assetrisk/pkg/session"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server wraps the MCP SDK server. One server holds one calculation
// session, shared by every tool call on it.
type Server struct {
	MCPServer *sdkmcp.Server

	engine   *formula.Engine
	session  *session.Session
	profiles map[string]*config.SiteProfile
	log      *slog.Logger
}

// NewServer creates an MCP server with the calculation tools registered.
func NewServer(engine *formula.Engine, version string, profiles map[string]*config.SiteProfile, opts ...session.Option) *Server {
	s := &Server{
		MCPServer: sdkmcp.NewServer(&sdkmcp.Implementation{Name: "assetrisk", Version: version}, nil),
		engine:    engine,
		session:   session.New(engine, opts...),
		profiles:  profiles,
		log:       slog.Default().With("component", "mcp"),
	}
	s.registerTools()
	return s
}

// Run serves over stdio until ctx ends or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.log.InfoContext(ctx, "starting MCP server over stdio", "session_id", s.session.ID())
	return s.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "list_formulas",
		Description: "List registered damage factor, consequence and risk formulas, optionally for one formula type.",
	}, s.handleListFormulas)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "describe_formula",
		Description: "Describe one formula variant: its inputs, units, accepted categorical levels and numeric constraints.",
	}, s.handleDescribeFormula)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "calculate",
		Description: "Run a formula. The outcome is recorded in this server's calculation history.",
	}, s.handleCalculate)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "classify_risk",
		Description: "Place a probability and consequence of failure on the 5x5 risk matrix.",
	}, s.handleClassifyRisk)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_history",
		Description: "Return recent calculations, newest first (at most 50).",
	}, s.handleGetHistory)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "clear_history",
		Description: "Forget all recorded calculations.",
	}, s.handleClearHistory)
}

// --- Tool input/output types ---

type listFormulasInput struct {
	FormulaType string `json:"formula_type,omitempty" jsonschema:"restrict to one formula type, e.g. cui_damage"`
}

type formulaSummary struct {
	Type     string `json:"type"`
	Variant  string `json:"variant"`
	Name     string `json:"name"`
	Unit     string `json:"unit"`
	Category string `json:"category"`
}

type listFormulasOutput struct {
	CatalogVersion string           `json:"catalog_version"`
	Formulas       []formulaSummary `json:"formulas"`
}

type describeFormulaInput struct {
	Variant string `json:"variant" jsonschema:"formula variant, e.g. dfcui_basic"`
}

type inputField struct {
	Name       string   `json:"name"`
	Required   bool     `json:"required"`
	Kind       string   `json:"kind"`
	Unit       string   `json:"unit,omitempty"`
	Constraint string   `json:"constraint,omitempty"`
	Levels     []string `json:"levels,omitempty"`
}

type describeFormulaOutput struct {
	Formula     formulaSummary `json:"formula"`
	Description string       `json:"description"`
	Version     string       `json:"version"`
	Inputs      []inputField `json:"inputs"`
}

type calculateInput struct {
	FormulaType string         `json:"formula_type" jsonschema:"formula type, e.g. cui_damage"`
	Variant     string         `json:"variant" jsonschema:"formula variant, e.g. dfcui_basic"`
	Inputs      map[string]any `json:"inputs" jsonschema:"input values keyed by field name"`
	Profile     string         `json:"profile,omitempty" jsonschema:"site profile whose defaults fill absent inputs"`
}

type calculateOutput struct {
	Value       float64  `json:"value"`
	Unit        string   `json:"unit"`
	RiskLevel   string   `json:"risk_level,omitempty"`
	Consequence string   `json:"consequence_category,omitempty"`
	MatrixCell  string   `json:"matrix_cell,omitempty"`
	Notes       []string `json:"notes,omitempty"`
	InputDigest string   `json:"input_digest"`
}

type classifyRiskInput struct {
	POF   float64 `json:"pof" jsonschema:"probability of failure, events per year"`
	COF   float64 `json:"cof" jsonschema:"consequence of failure in USD, or m2 with basis Area"`
	Basis string  `json:"basis,omitempty" jsonschema:"Financial (default) or Area"`
}

type classifyRiskOutput struct {
	Cell                     string `json:"cell"`
	Score                    int    `json:"score"`
	RiskCategory             string `json:"risk_category"`
	RiskLevel                string `json:"risk_level"`
	Priority                 string `json:"priority"`
	InspectionIntervalMonths int    `json:"inspection_interval_months"`
}

type getHistoryInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum entries to return (default all)"`
}

type historyEntry struct {
	ID        uint64  `json:"id"`
	Timestamp string  `json:"timestamp"`
	Variant   string  `json:"variant"`
	Value     float64 `json:"value,omitempty"`
	Error     string  `json:"error,omitempty"`
}

type getHistoryOutput struct {
	Entries []historyEntry `json:"entries"`
	Total   int            `json:"total"`
}

type clearHistoryInput struct{}

type clearHistoryOutput struct {
	Cleared int `json:"cleared"`
}

// --- Tool handlers ---

func summarize(c formula.Config) formulaSummary {
	return formulaSummary{
		Type:     string(c.Type),
		Variant:  string(c.Variant),
		Name:     c.Name,
		Unit:     c.OutputUnit,
		Category: string(c.Category),
	}
}

func (s *Server) handleListFormulas(_ context.Context, _ *sdkmcp.CallToolRequest, input listFormulasInput) (*sdkmcp.CallToolResult, listFormulasOutput, error) {
	reg := s.engine.Registry()
	cfgs := reg.Configs()
	if input.FormulaType != "" {
		t, err := formula.ParseType(input.FormulaType)
		if err != nil {
			return nil, listFormulasOutput{}, err
		}
		cfgs = reg.FormulasByType(t)
	}

	out := listFormulasOutput{CatalogVersion: reg.Version(), Formulas: make([]formulaSummary, 0, len(cfgs))}
	for _, c := range cfgs {
		out.Formulas = append(out.Formulas, summarize(c))
	}
	return nil, out, nil
}

func (s *Server) handleDescribeFormula(_ context.Context, _ *sdkmcp.CallToolRequest, input describeFormulaInput) (*sdkmcp.CallToolResult, describeFormulaOutput, error) {
	reg := s.engine.Registry()
	v := formula.Variant(input.Variant)
	cfg, ok := reg.FormulaConfig(v)
	if !ok {
		return nil, describeFormulaOutput{}, fmt.Errorf("formula %q is not registered", input.Variant)
	}
	specs, _ := reg.Inputs(v)

	out := describeFormulaOutput{
		Formula:     summarize(cfg),
		Description:    cfg.Description,
		Version:        cfg.Version,
		Inputs:         make([]inputField, 0, len(specs)),
	}
	for _, sp := range specs {
		out.Inputs = append(out.Inputs, inputField{
			Name:       sp.Name,
			Required:   sp.Required,
			Kind:       string(sp.Kind),
			Unit:       sp.Unit,
			Constraint: sp.Constraint,
			Levels:     sp.Levels,
		})
	}
	return nil, out, nil
}

func (s *Server) handleCalculate(ctx context.Context, _ *sdkmcp.CallToolRequest, input calculateInput) (*sdkmcp.CallToolResult, calculateOutput, error) {
	in := formula.Input(input.Inputs)
	if input.Profile != "" {
		p, ok := config.FindProfile(s.profiles, input.Profile)
		if !ok {
			return nil, calculateOutput{}, fmt.Errorf("unknown site profile %q", input.Profile)
		}
		in = p.Apply(in)
	}

	out := s.session.Calculate(ctx, formula.Type(input.FormulaType), formula.Variant(input.Variant), in)
	if out.Error != nil {
		return nil, calculateOutput{}, out.Error
	}

	res := out.Result
	co := calculateOutput{
		Value:       res.Value,
		Unit:        res.Metadata.Unit,
		RiskLevel:   string(res.Metadata.RiskLevel),
		Consequence: res.Metadata.ConsequenceCategory,
		Notes:       res.Metadata.Notes,
		InputDigest: res.InputDigest,
	}
	if res.Metadata.Matrix != nil {
		co.MatrixCell = res.Metadata.Matrix.String()
	}
	return nil, co, nil
}

func (s *Server) handleClassifyRisk(_ context.Context, _ *sdkmcp.CallToolRequest, input classifyRiskInput) (*sdkmcp.CallToolResult, classifyRiskOutput, error) {
	basis := risk.BasisFinancial
	if input.Basis != "" {
		b, ok := risk.ParseBasis(input.Basis)
		if !ok {
			return nil, classifyRiskOutput{}, fmt.Errorf("unknown basis %q (want Financial or Area)", input.Basis)
		}
		basis = b
	}
	c := risk.Classify(input.POF, input.COF, basis)
	return nil, classifyRiskOutput{
		Cell:                     c.String(),
		Score:                    c.Score,
		RiskCategory:             string(c.RiskCategory),
		RiskLevel:                string(c.RiskLevel),
		Priority:                 string(c.Priority),
		InspectionIntervalMonths: c.InspectionIntervalMonths,
	}, nil
}

func (s *Server) handleGetHistory(_ context.Context, _ *sdkmcp.CallToolRequest, input getHistoryInput) (*sdkmcp.CallToolResult, getHistoryOutput, error) {
	items := s.session.History()
	out := getHistoryOutput{Total: len(items), Entries: []historyEntry{}}
	if input.Limit > 0 && input.Limit < len(items) {
		items = items[:input.Limit]
	}
	for _, it := range items {
		e := historyEntry{
			ID:        it.ID,
			Timestamp: it.Timestamp.UTC().Format(time.RFC3339Nano),
			Variant:   string(it.Variant),
		}
		if it.Error != nil {
			e.Error = it.Error.Error()
		} else if it.Result != nil {
			e.Value = it.Result.Value
		}
		out.Entries = append(out.Entries, e)
	}
	return nil, out, nil
}

func (s *Server) handleClearHistory(_ context.Context, _ *sdkmcp.CallToolRequest, _ clearHistoryInput) (*sdkmcp.CallToolResult, clearHistoryOutput, error) {
	n := len(s.session.History())
	s.session.ClearHistory()
	s.log.Info("history cleared", "entries", n)
	return nil, clearHistoryOutput{Cleared: n}, nil
}

// ProfileCodes lists the loaded site profiles.
func (s *Server) ProfileCodes() []string {
	codes := make([]string, 0, len(s.profiles))
	for c := range s.profiles {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
