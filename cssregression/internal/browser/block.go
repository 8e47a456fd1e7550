// CLAUDE:SUMMARY Fails matching requests (URL patterns or resource types) before they reach the page under test.
package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// resourceTypes maps config names to CDP resource types.
var resourceTypes = map[string]proto.NetworkResourceType{
	"images":      proto.NetworkResourceTypeImage,
	"fonts":       proto.NetworkResourceTypeFont,
	"media":       proto.NetworkResourceTypeMedia,
	"stylesheets": proto.NetworkResourceTypeStylesheet,
	"scripts":     proto.NetworkResourceTypeScript,
}

// blockRules splits block entries into resource types and URL patterns.
func blockRules(entries []string) (types map[proto.NetworkResourceType]bool, patterns []string) {
	types = make(map[proto.NetworkResourceType]bool)
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if t, ok := resourceTypes[strings.ToLower(e)]; ok {
			types[t] = true
			continue
		}
		patterns = append(patterns, e)
	}
	return types, patterns
}

// applyBlocking hijacks page requests. URL patterns use the CDP wildcard
// syntax ("*" and "?"). The caller stops the returned router.
func applyBlocking(page *rod.Page, entries []string) *rod.HijackRouter {
	types, patterns := blockRules(entries)
	router := page.HijackRequests()

	fail := func(ctx *rod.Hijack) {
		ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
	}
	for _, p := range patterns {
		router.MustAdd(p, fail)
	}
	if len(types) > 0 {
		router.MustAdd("*", func(ctx *rod.Hijack) {
			if types[ctx.Request.Type()] {
				fail(ctx)
				return
			}
			ctx.ContinueRequest(&proto.FetchContinueRequest{})
		})
	}

	go router.Run()
	return router
}
