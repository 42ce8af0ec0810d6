// Package research provides the web research capabilities: page content
// extraction, web search with parallel result extraction, website
// summaries and sandboxed JavaScript execution.
//
// Tools:
//   - grab_site_content: fetch a page and return its text
//   - search_web: generate a query, search, read the results, summarise
//   - summarize_website: fetch a page and summarise it
//   - execute_js: run JavaScript in a headless browser
package research
