// Package meilifed orchestrates a catalog of Meilisearch indexes from Go.
//
// Logical index ids are mapped to remote uids through a common prefix and
// suffix, indexes are created and configured on first use, and searches can
// target one index, many indexes or a weighted group whose results are merged
// into a single ranked list.
//
//	client, _ := meilifed.New(ctx,
//	    meilifed.WithURL("http://localhost:7700"),
//	    meilifed.WithKeys("", os.Getenv("MEILI_MASTER_KEY")),
//	    meilifed.WithAffixes("prod_", ""),
//	    meilifed.WithRepositories(meilifed.StaticRepository("catalog", nil,
//	        meilifed.MustIndex("movies", "id", nil),
//	        meilifed.MustIndex("books", "isbn", nil),
//	    )),
//	    meilifed.WithGroup("media", meilifed.Member("movies", 1), meilifed.Member("books", 0.8)),
//	)
//	_ = client.Sync(ctx, "*")
//
//	b := client.Batcher()
//	_ = b.Add(ctx, "movies", map[string]any{"id": 1, "title": "Heat"})
//	_, _ = b.Flush(ctx)
//
//	hits, _ := client.GroupSearchMerged(ctx, "media", meilifed.Query("heat", meilifed.Limit(20)), true)
package meilifed
