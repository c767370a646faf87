package mcpserver

// CSVFormatContract describes the per-group CSV files written by an export.
const CSVFormatContract = `# pagetree CSV Output Format

An export writes one CSV file per top-level page of the input document.

## Files

- File name: the group key followed by ` + "`" + `.csv` + "`" + `.
- The group key is the top-level page title with whitespace removed and path
  separators, control characters and ` + "`" + `:*?"<>|` + "`" + ` replaced by ` + "`" + `_` + "`" + `.
- Keys are compared case-insensitively after Unicode NFC normalization; two
  top-level pages with colliding keys fail the export unless ` + "`" + `on_duplicate` + "`" + `
  is set to ` + "`" + `merge` + "`" + ` or ` + "`" + `rename` + "`" + ` (which appends ` + "`" + `-2` + "`" + `, ` + "`" + `-3` + "`" + `, ...).

## Rows

1. The first row is always the header ` + "`" + `id,title,url` + "`" + `.
2. Every following row is a strict descendant of the top-level page. The
   top-level page itself is never a row of its own file.
3. Rows are in breadth-first order: all direct children in source order, then
   all grandchildren, and so on.
4. ` + "`" + `url` + "`" + ` is the base URL joined to the page's web locator with exactly one
   ` + "`" + `/` + "`" + `. Absolute locators are kept as is; a page without a locator has an
   empty url.
5. Fields are quoted per RFC 4180 when they contain commas, quotes or newlines.
6. A top-level page without descendants produces a header-only file.
7. A page shared by several top-level pages appears once in each of their files.

## Example

` + "```" + `csv
id,title,url
2,A1,https://wiki.example.com/wiki/spaces/X/pages/2
3,A2,https://wiki.example.com/wiki/spaces/X/pages/3
4,A2a,https://wiki.example.com/wiki/spaces/X/pages/4
` + "```" + `
`
