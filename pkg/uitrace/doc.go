/*
Package uitrace correlates user-interface occurrences into causally linked
traces and forwards them in size-bounded batches to a collector.

# Overview

An Aggregator tracks four kinds of events:
  - action: a user interaction; starts a new trace
  - load: a component loading, from BeginLoad to EndLoad
  - dataRequest: a background request, from BeginDataRequest to EndDataRequest
  - error: a reported error, rationed per session

Every event carries the id of the action at the root of its trace (tId)
and the id of its parent (pId): the nearest pending event of an ancestor
component, or the action itself.

The Aggregator never owns UI components. It is generic over the component
type and learns about components only through registry.Handler
implementations; its per-component bookkeeping is held weakly, so a
discarded component is collected as usual.

# Basic Usage

	type Widget struct {
	    Name   string
	    Parent *Widget
	}

	agg, err := uitrace.New(
	    uitrace.WithBeaconURL[Widget]("https://collector.example.com/beacon"),
	    uitrace.WithHandlers[Widget](registry.HandlerFuncs[Widget]{
	        TypeFunc: func(w *Widget) string { return w.Name },
	        HierarchyFunc: func(w *Widget) []*Widget {
	            var chain []*Widget
	            for p := w; p != nil; p = p.Parent {
	                chain = append(chain, p)
	            }
	            return chain
	        },
	    }),
	)
	if err != nil {
	    log.Fatal(err)
	}
	defer agg.Destroy()

	agg.RecordAction(uitrace.ActionOptions[Widget]{Component: button, Description: "clicked save"})
	agg.BeginLoad(uitrace.LoadOptions[Widget]{Component: grid})
	meta, ok := agg.BeginDataRequest(grid, "/slm/webservice/v2.0/defect", nil)
	// ... forward meta.Headers with the request ...
	agg.EndDataRequest(grid, resp, meta.RequestID)
	agg.EndLoad(uitrace.LoadOptions[Widget]{Component: grid})

# Sessions

StartSession concludes everything still pending (typically with status
"Navigation"), flushes, and installs default parameters merged into every
later event. Error quotas and first-load flags reset with it.

# Configuration

Settings can be loaded from YAML or JSON with the config package and
applied with WithSettings.
*/
package uitrace
