// Package harness runs query scenarios against the flattening engine.
//
// A scenario names a CUE model, a set of fixture rows and a query. The
// harness loads the model into a fresh in-memory store, inserts the
// fixtures, compiles the query and executes it once with the collection
// rewrite and once naively, then evaluates the scenario's assertions
// against both runs.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: blogs_with_posts
//	description: "Every blog with its posts, ordered by title"
//	model: ../models/blog.cue
//	fixtures:
//	  - entity: Blog
//	    rows:
//	      - {Id: 1, Name: Alpha}
//	  - entity: Post
//	    rows:
//	      - {Id: 10, BlogId: 1, Title: b, Rank: 2}
//	query:
//	  from: Blog
//	  select:
//	    - field: Id
//	    - navigation: Posts
//	      order_by: [{field: Title}]
//	assertions:
//	  - type: formatted
//	    rows: ["{Id: 1, Posts: [Post(10)]}"]
//	  - type: statement_count
//	    mode: rewritten
//	    count: 2
//	  - type: equivalent
//
// Fixtures are inserted in file order. The model path is resolved
// relative to the scenario file (or the base path given to
// LoadScenarioWithBasePath).
//
// # Assertion Types
//
//   - results: rows match expected plain data, compared as canonical JSON
//   - formatted: rows match expected ir.Format strings, in order
//   - row_count: the query returned exactly count rows
//   - statement_count: a mode issued exactly count SQL statements
//   - collection_stats: per-collection buffer counters of the rewritten run
//   - sql_contains: an explained statement contains a fragment
//   - equivalent: the rewritten and naive runs produced identical rows
//
// Assertions default to the rewritten run; set mode: naive to check the
// naive one.
//
// # Deterministic Testing
//
// Every run uses a fixed pass ID and a private in-memory database, so
// repeated runs produce byte-identical canonical results for golden file
// comparison.
package harness
