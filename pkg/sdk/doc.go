// Package visim provides an embedded Go client for the visim photo
// similarity engine: batch embedding extraction, an LSH index over the
// extracted vectors, and top-k similarity queries, all in-process.
//
// The caller supplies the extraction backend; everything else is wired by
// the client:
//
//	client, _ := visim.New(
//	    visim.WithExtractor(extractor),
//	    visim.WithIndexParams(5, 10),
//	)
//	defer client.Close()
//
//	report, _ := client.IndexImages(ctx, photos, nil)
//	matches, _ := client.Search(ctx, queryImage, 10)
package visim
