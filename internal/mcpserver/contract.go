package mcpserver

// PostFormatContract describes the canonical post format that LLM
// consumers should follow when creating or updating posts.
const PostFormatContract = `# Ansuz Post Format Contract

Every blog post stored in the content repository MUST follow this
structure.

## Structure

` + "```" + `markdown
---
title: Human-readable title
tags: [tag-one, tag-two]
date: 2026-01-15
---

Body text in standard Markdown.
` + "```" + `

## Rules

1. **The front-matter block is mandatory.** The ` + "`" + `---` + "`" + ` fences must be the
   first thing in the file (no leading blank lines).
2. **One field per line, ` + "`" + `key: value` + "`" + `.** The first colon separates key
   from value; values may contain further colons. Lines without a colon
   are ignored.
3. **List values** use brackets: ` + "`" + `tags: [a, b, c]` + "`" + `. Elements are
   comma-separated; empty elements are dropped.
4. **All values are plain strings.** No quoting, no escaping, no nested
   structure. Do not put ` + "`" + `]` + "`" + ` or commas inside list elements.
5. **` + "`" + `title` + "`" + ` is required**; ` + "`" + `tags` + "`" + ` and ` + "`" + `date` + "`" + ` are optional.
   Dates are ISO-8601 (YYYY-MM-DD).
6. **Slugs** are the filename without ` + "`" + `.md` + "`" + `: lowercase, hyphenated,
   no slashes, no ` + "`" + `..` + "`" + `.
7. **Encoding** is UTF-8.

## Assets & Images

- Upload assets via the ` + "`" + `upload_asset` + "`" + ` tool. It returns a
  ` + "`" + `markdownImage` + "`" + ` field ready to paste into the post body.
- Supported formats: png, jpg, jpeg, gif, webp, svg, pdf.

## Example

` + "```" + `markdown
---
title: Spring hackathon report
tags: [events, hackathon]
date: 2026-04-12
---

# Spring hackathon report

Twelve members took part this year.

![Group photo](/assets/hackathon-2026.jpg)
` + "```" + `
`
