// Package pipeline coordinates document processing: classification through
// the registry, optional chunking, per-chunk extraction on a bounded worker
// pool, merging and validation.
//
// Process never returns an error. Every outcome is a types.ProcessingResult
// whose Status is "success" or "failed"; failures carry a human readable
// Reason and are reported to the metrics recorder under a reason code.
//
// Usage:
//
//	p := pipeline.New(registry.NewDefault(), client,
//	    pipeline.WithAutoSizer(sizer),
//	    pipeline.WithRecorder(collector),
//	    pipeline.WithStore(store),
//	)
//	res := p.Process(ctx, types.RawDocument{Text: text})
package pipeline
