package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/asturkmani/superfinance-mcp/internal/cachedata"
	"github.com/asturkmani/superfinance-mcp/internal/modules/classification"
	"github.com/asturkmani/superfinance-mcp/internal/modules/holdings"
	"github.com/asturkmani/superfinance-mcp/internal/modules/manualportfolio"
	"github.com/asturkmani/superfinance-mcp/internal/modules/marketdata"
	"github.com/asturkmani/superfinance-mcp/internal/scheduler"
)

// Tool is one named operation callable through the tool API. Arguments
// arrive as a JSON object and results are returned as-is.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`

	run func(ctx context.Context, args json.RawMessage) (interface{}, error)
}

// ToolHandlers exposes every service operation under a uniform
// name-plus-arguments calling convention, mirroring the HTTP routes.
type ToolHandlers struct {
	log   zerolog.Logger
	tools map[string]Tool
}

// ToolConfig wires the services the tools dispatch to.
type ToolConfig struct {
	MarketData     *marketdata.Service
	Holdings       *holdings.Service
	Portfolios     *manualportfolio.Service
	Classification *classification.Service
	CacheRepo      *cachedata.Repository
	Scheduler      *scheduler.Scheduler
}

// NewToolHandlers builds the tool registry.
func NewToolHandlers(cfg ToolConfig, log zerolog.Logger) *ToolHandlers {
	h := &ToolHandlers{
		log:   log.With().Str("component", "tools").Logger(),
		tools: make(map[string]Tool),
	}
	h.register(cfg)
	return h
}

// RegisterRoutes mounts the tool routes
func (h *ToolHandlers) RegisterRoutes(r chi.Router) {
	r.Get("/tools", h.HandleListTools)
	r.Post("/tools/{name}", h.HandleCallTool)
}

// HandleListTools returns every registered tool
func (h *ToolHandlers) HandleListTools(w http.ResponseWriter, r *http.Request) {
	tools := make([]Tool, 0, len(h.tools))
	for _, t := range h.tools {
		tools = append(tools, t)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })

	writeJSON(h.log, w, http.StatusOK, map[string]interface{}{"tools": tools})
}

// HandleCallTool dispatches one tool invocation
func (h *ToolHandlers) HandleCallTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	tool, ok := h.tools[name]
	if !ok {
		writeJSON(h.log, w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("unknown tool %q", name)})
		return
	}

	args := json.RawMessage("{}")
	if r.Body != nil {
		var body json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && len(body) > 0 {
			args = body
		}
	}

	result, err := tool.run(r.Context(), args)
	if err != nil {
		writeJSON(h.log, w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(h.log, w, http.StatusOK, map[string]interface{}{"result": result})
}

func (h *ToolHandlers) add(name, description string, run func(ctx context.Context, args json.RawMessage) (interface{}, error)) {
	h.tools[name] = Tool{Name: name, Description: description, run: run}
}

func (h *ToolHandlers) register(cfg ToolConfig) {
	if cfg.MarketData != nil {
		h.add("get_stock_price", "Get the current price for a ticker symbol",
			func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
				var args struct {
					Symbol string `json:"symbol"`
				}
				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, fmt.Errorf("invalid arguments: %w", err)
				}
				if args.Symbol == "" {
					return nil, fmt.Errorf("symbol is required")
				}
				return cfg.MarketData.GetLivePrice(ctx, args.Symbol)
			})

		h.add("get_fx_rate", "Get the exchange rate between two currencies",
			func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
				var args struct {
					From string `json:"from"`
					To   string `json:"to"`
				}
				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, fmt.Errorf("invalid arguments: %w", err)
				}
				if args.From == "" || args.To == "" {
					return nil, fmt.Errorf("from and to are required")
				}
				rate, err := cfg.MarketData.GetFxRate(ctx, args.From, args.To)
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{"from": args.From, "to": args.To, "rate": rate}, nil
			})

		h.add("get_stock_history", "Get historical OHLCV bars for a ticker",
			func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
				var args struct {
					Symbol   string `json:"symbol"`
					Period   string `json:"period"`
					Interval string `json:"interval"`
				}
				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, fmt.Errorf("invalid arguments: %w", err)
				}
				if args.Symbol == "" {
					return nil, fmt.Errorf("symbol is required")
				}
				return cfg.MarketData.GetHistory(ctx, args.Symbol, args.Period, args.Interval)
			})

		h.add("get_stock_indicators", "Get technical indicators for a ticker",
			func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
				var args struct {
					Symbol string `json:"symbol"`
					Period string `json:"period"`
				}
				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, fmt.Errorf("invalid arguments: %w", err)
				}
				if args.Symbol == "" {
					return nil, fmt.Errorf("symbol is required")
				}
				return cfg.MarketData.GetIndicators(ctx, args.Symbol, args.Period)
			})
	}

	if cfg.Holdings != nil {
		h.add("list_holdings", "Consolidate holdings across every configured source",
			func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
				var args struct {
					UserID            string `json:"user_id"`
					UserSecret        string `json:"user_secret"`
					ReportingCurrency string `json:"reporting_currency"`
				}
				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, fmt.Errorf("invalid arguments: %w", err)
				}
				return cfg.Holdings.Consolidate(ctx, holdings.Params{
					UserID:            args.UserID,
					UserSecret:        args.UserSecret,
					ReportingCurrency: args.ReportingCurrency,
				})
			})

		h.add("list_brokerage_accounts", "List connected brokerage accounts",
			func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
				var args struct {
					UserID     string `json:"user_id"`
					UserSecret string `json:"user_secret"`
				}
				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, fmt.Errorf("invalid arguments: %w", err)
				}
				return cfg.Holdings.ListBrokerageAccounts(ctx, args.UserID, args.UserSecret)
			})
	}

	if cfg.Portfolios != nil {
		h.add("list_portfolios", "List manual portfolios",
			func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
				return cfg.Portfolios.ListPortfolios()
			})

		h.add("create_portfolio", "Create an empty manual portfolio",
			func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
				var args struct {
					Name string `json:"name"`
				}
				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, fmt.Errorf("invalid arguments: %w", err)
				}
				return cfg.Portfolios.CreatePortfolio(args.Name)
			})

		h.add("delete_portfolio", "Delete a manual portfolio",
			func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
				var args struct {
					PortfolioID string `json:"portfolio_id"`
				}
				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, fmt.Errorf("invalid arguments: %w", err)
				}
				if err := cfg.Portfolios.DeletePortfolio(args.PortfolioID); err != nil {
					return nil, err
				}
				return map[string]string{"status": "deleted"}, nil
			})

		h.add("add_position", "Add a position to a manual portfolio",
			func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
				var args struct {
					PortfolioID string `json:"portfolio_id"`
					manualportfolio.PositionInput
				}
				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, fmt.Errorf("invalid arguments: %w", err)
				}
				return cfg.Portfolios.AddPosition(args.PortfolioID, args.PositionInput)
			})

		h.add("update_position", "Update a position in a manual portfolio",
			func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
				var args struct {
					PortfolioID string `json:"portfolio_id"`
					PositionID  string `json:"position_id"`
					manualportfolio.PositionUpdate
				}
				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, fmt.Errorf("invalid arguments: %w", err)
				}
				return cfg.Portfolios.UpdatePosition(args.PortfolioID, args.PositionID, args.PositionUpdate)
			})

		h.add("remove_position", "Remove a position from a manual portfolio",
			func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
				var args struct {
					PortfolioID string `json:"portfolio_id"`
					PositionID  string `json:"position_id"`
				}
				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, fmt.Errorf("invalid arguments: %w", err)
				}
				if err := cfg.Portfolios.RemovePosition(args.PortfolioID, args.PositionID); err != nil {
					return nil, err
				}
				return map[string]string{"status": "deleted"}, nil
			})

		h.add("value_portfolio", "Price a manual portfolio, optionally in a target currency",
			func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
				var args struct {
					PortfolioID string `json:"portfolio_id"`
					Currency    string `json:"currency"`
				}
				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, fmt.Errorf("invalid arguments: %w", err)
				}
				return cfg.Portfolios.ValuePortfolio(ctx, args.PortfolioID, args.Currency)
			})
	}

	if cfg.Classification != nil {
		h.add("classify_symbol", "Classify a symbol into an investment category",
			func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
				var args struct {
					Symbol      string `json:"symbol"`
					Description string `json:"description"`
				}
				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, fmt.Errorf("invalid arguments: %w", err)
				}
				if args.Symbol == "" {
					return nil, fmt.Errorf("symbol is required")
				}
				return cfg.Classification.Classify(ctx, args.Symbol, args.Description)
			})

		h.add("set_classification_override", "Pin a symbol to a fixed name and category",
			func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
				var args struct {
					Symbol   string `json:"symbol"`
					Name     string `json:"name"`
					Category string `json:"category"`
				}
				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, fmt.Errorf("invalid arguments: %w", err)
				}
				if err := cfg.Classification.SetOverride(args.Symbol, args.Name, args.Category); err != nil {
					return nil, err
				}
				return map[string]string{"status": "ok"}, nil
			})
	}

	if cfg.CacheRepo != nil {
		h.add("cache_status", "Report cache contents and refresh bookkeeping",
			func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
				return cfg.CacheRepo.GetStatus()
			})
	}

	if cfg.Scheduler != nil {
		h.add("refresh_cache", "Run a refresh job immediately (prices, fx or holdings)",
			func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
				var args struct {
					RefreshType string `json:"refresh_type"`
				}
				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, fmt.Errorf("invalid arguments: %w", err)
				}
				name, ok := refreshJobNames[args.RefreshType]
				if !ok {
					return nil, fmt.Errorf("refresh_type must be prices, fx or holdings")
				}
				found, err := cfg.Scheduler.RunJobByName(name)
				if err != nil {
					return nil, err
				}
				if !found {
					return nil, fmt.Errorf("job %s is not registered", name)
				}
				return map[string]string{"status": "ok"}, nil
			})
	}
}
