package router

import (
	"context"
	"fmt"
	"strings"

	"docchat/logger"
	"docchat/model"
	"docchat/types"

	"go.uber.org/zap"
)

const classifierSystem = "You are a query classifier. Respond with ONLY the route name."

const routerPrompt = `Classify the user's query into exactly one route.

ROUTES:
- document_search: the answer should come from the uploaded document. Prefer this route for definitional, technical or factual questions about the document's subject whenever a document is loaded.
- memory_lookup: the query explicitly refers to the user themselves (their preferences, role, past statements) or to established facts about their organization, e.g. "what is my role?" or "what database did we choose?".
- general: greetings, small talk, and anything else.

Document loaded: %s

Query: %s

Respond with ONLY one of: document_search, memory_lookup, general`

// aliases maps canonical response tokens onto routes.
var aliases = map[string]types.Route{
	"document_search": types.RouteDocumentSearch,
	"document search": types.RouteDocumentSearch,
	"document-search": types.RouteDocumentSearch,
	"memory_lookup":   types.RouteMemoryLookup,
	"memory lookup":   types.RouteMemoryLookup,
	"memory-lookup":   types.RouteMemoryLookup,
	"general":         types.RouteGeneral,
}

type Router struct {
	gen    model.Generator
	logger *zap.Logger
}

func New(gen model.Generator, log *zap.Logger) *Router {
	return &Router{gen: gen, logger: log.Named("router")}
}

// Route classifies query with one model call. Failures fall back to
// general, and document_search is downgraded to general when no document
// is loaded.
func (r *Router) Route(ctx context.Context, query string, hasDocument bool) types.Route {
	hasDocs := "No"
	if hasDocument {
		hasDocs = "Yes"
	}
	messages := []model.Message{
		model.System(classifierSystem),
		model.User(fmt.Sprintf(routerPrompt, hasDocs, query)),
	}

	r.logger.Info("routing query", zap.String("query", logger.Truncate(query, 80)))
	raw, err := r.gen.Invoke(ctx, messages)
	if err != nil {
		r.logger.Warn("router failed, defaulting to general", zap.Error(err))
		return types.RouteGeneral
	}

	route, ok := ParseRoute(raw)
	if !ok {
		r.logger.Warn("could not parse route, defaulting to general", zap.String("raw", logger.Truncate(raw, 200)))
		return types.RouteGeneral
	}

	if route == types.RouteDocumentSearch && !hasDocument {
		r.logger.Info("no document loaded, downgrading document_search to general")
		return types.RouteGeneral
	}

	r.logger.Info("route", zap.String("route", string(route)))
	return route
}

// ParseRoute reads a route from a model response. A response that is just
// a route name (any case, quoted or punctuated) is looked up directly;
// otherwise the route name or alias occurring first in the text wins.
func ParseRoute(raw string) (types.Route, bool) {
	text := strings.ToLower(strings.TrimSpace(raw))

	token := strings.Trim(text, " \t\r\n\"'`.,:;!*")
	if route, ok := aliases[token]; ok {
		return route, true
	}

	best, bestPos := types.Route(""), -1
	for alias, route := range aliases {
		pos := strings.Index(text, alias)
		if pos < 0 {
			continue
		}
		if bestPos < 0 || pos < bestPos {
			best, bestPos = route, pos
		}
	}
	return best, bestPos >= 0
}
