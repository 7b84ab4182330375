package chunk

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopsteward/steward/internal/contract"
)

// Structure markers in converted contract markdown.
var (
	// "## ARTICLE 5" with the title on the following heading line.
	articleHeaderRe = regexp.MustCompile(`(?m)^#{1,2}\s*ARTICLE\s+(\d+)\s*\n#{1,2}\s*([A-Z][A-Z\s&,]+)`)
	// "## ARTICLE 5 MANAGEMENT RIGHTS" on a single line.
	articleHeaderSingleRe = regexp.MustCompile(`(?m)^#{1,2}\s*ARTICLE\s+(\d+)\s+([A-Z][A-Z\s&,]+)`)
	// "Section 3." or "Section **3**." with an optional run-in title.
	sectionHeaderRe = regexp.MustCompile(`(?i)Section\s+\*{0,2}(\d+)\*{0,2}[.\s]+\*{0,2}([^.\n]+)`)
	louHeaderRe     = regexp.MustCompile(`(?mi)^##\s*Letter\s+of\s+Understanding\s+#?(\d+)`)
	// "a. CHECKERS" lettered subsection with an all-caps title.
	letteredSubRe = regexp.MustCompile(`(?m)\n\s*\*{0,2}([a-z])[.)]\s*\*{0,2}\s*([A-Z][A-Z\s&]+?)(?:\s*\.|\s*\n|\s*\*|$)`)
	// "1." numbered list item.
	numberedSubRe = regexp.MustCompile(`(?m)\n\s*\*{0,2}(\d+)[.)]\s*\*{0,2}\s*(.+?)(?:\n|$)`)
	headingLineRe = regexp.MustCompile(`(?m)^#{1,2}.*$`)

	// All-caps heading opening the numbered letters-of-understanding
	// list some exports use instead of per-letter headers.
	louListMarkerRe = regexp.MustCompile(`(?m)^#{0,6}\s*(?:[A-Z][A-Z\s.,&]*\s)?LETTERS\s+OF\s+UNDERSTANDING\s*$`)
	louListEntryRe  = regexp.MustCompile(`\n(\d+)\.\s+([A-Z][\w\s\-.]+?)(?:\n|$)`)
)

// Chunk size band in characters.
const (
	DefaultMinChunkChars    = 100
	DefaultTargetChunkChars = 800
	DefaultMaxChunkChars    = 2000

	// Below this a cleaned chunk is header debris, not contract language.
	minSubstantiveChars = 30

	// Fallback letters of understanding come from a summary list, so
	// their bodies are capped rather than split.
	louListBodyCap = 2000
)

// Sizes is the chunk size band: chunks accumulate toward TargetChars,
// anything over MaxChars is split further, and fragments under
// MinChars are not worth a chunk of their own.
type Sizes struct {
	MinChars    int
	TargetChars int
	MaxChars    int
}

// Chunker carves contract markdown into citable chunks along the
// article / section / subsection tree. Every chunk keeps its citation
// trail so an answer can point back at contract language.
type Chunker struct {
	contractID  string
	minChars    int
	targetChars int
	maxChars    int
}

// NewChunker creates a chunker with the default size band.
func NewChunker(contractID string) *Chunker {
	return NewChunkerWithSizes(contractID, Sizes{})
}

// NewChunkerWithSizes creates a chunker with a custom size band. Zero
// or negative values fall back to the defaults.
func NewChunkerWithSizes(contractID string, sizes Sizes) *Chunker {
	if sizes.MinChars <= 0 {
		sizes.MinChars = DefaultMinChunkChars
	}
	if sizes.TargetChars <= 0 {
		sizes.TargetChars = DefaultTargetChunkChars
	}
	if sizes.MaxChars <= 0 {
		sizes.MaxChars = DefaultMaxChunkChars
	}
	return &Chunker{
		contractID:  contractID,
		minChars:    sizes.MinChars,
		targetChars: sizes.TargetChars,
		maxChars:    sizes.MaxChars,
	}
}

// Parse splits contract markdown into chunks. Article and section
// header lines stay inside their chunk's content so the keyword index
// sees them. A document with no recognizable structure comes back as a
// single chunk rather than nothing.
func (c *Chunker) Parse(content string) []*contract.Chunk {
	var chunks []*contract.Chunk
	for _, span := range c.splitByArticles(content) {
		if span.isLOU {
			chunks = append(chunks, c.chunkLOU(span.content)...)
			continue
		}
		chunks = append(chunks, c.chunkArticle(span.num, span.title, span.content)...)
	}
	if !containsLOU(chunks) {
		chunks = append(chunks, c.chunkLOUList(content)...)
	}
	if len(chunks) == 0 {
		if ch := c.wholeDocumentChunk(content); ch != nil {
			chunks = append(chunks, ch)
		}
	}
	return chunks
}

// articleSpan is one article (or one header-style letter of
// understanding) and the text it covers.
type articleSpan struct {
	pos     int
	num     int
	title   string
	isLOU   bool
	content string
}

func (c *Chunker) splitByArticles(content string) []articleSpan {
	var spans []articleSpan
	seen := make(map[int]bool)
	add := func(pos, num int, title string, isLOU bool) {
		if seen[pos] {
			return
		}
		seen[pos] = true
		spans = append(spans, articleSpan{pos: pos, num: num, title: title, isLOU: isLOU})
	}
	for _, re := range []*regexp.Regexp{articleHeaderRe, articleHeaderSingleRe} {
		for _, m := range re.FindAllStringSubmatchIndex(content, -1) {
			num, err := strconv.Atoi(content[m[2]:m[3]])
			if err != nil {
				continue
			}
			add(m[0], num, headerTitle(content[m[4]:m[5]]), false)
		}
	}
	for _, m := range louHeaderRe.FindAllStringIndex(content, -1) {
		add(m[0], 0, "", true)
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].pos < spans[j].pos })

	listStart := -1
	if loc := louListMarkerRe.FindStringIndex(content); loc != nil {
		listStart = loc[0]
	}
	for i := range spans {
		end := len(content)
		if i+1 < len(spans) {
			end = spans[i+1].pos
		}
		// The letters-of-understanding list ends the article that
		// precedes it.
		if !spans[i].isLOU && listStart > spans[i].pos && listStart < end {
			end = listStart
		}
		spans[i].content = content[spans[i].pos:end]
	}
	return spans
}

// headerTitle trims an article title capture to its first line. The
// greedy caps class can run past the heading into the body text.
func headerTitle(raw string) string {
	if i := strings.IndexByte(raw, '\n'); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimSpace(raw)
}

func (c *Chunker) chunkArticle(num int, title, content string) []*contract.Chunk {
	base := spot{articleNum: num, articleTitle: title}
	secs := findSections(content)
	if len(secs) == 0 {
		// Articles without section headers stay whole regardless of
		// size. Splitting them loses the only citation they have.
		if ch := c.newChunk(base, content, contract.ChunkTypeArticle); ch != nil {
			return []*contract.Chunk{ch}
		}
		return nil
	}
	var chunks []*contract.Chunk
	if intro := c.articleIntro(base, content[:secs[0].start]); intro != nil {
		chunks = append(chunks, intro)
	}
	for _, sec := range secs {
		chunks = append(chunks, c.chunkSection(base, sec)...)
	}
	return chunks
}

// articleIntro keeps substantive text between the article header and
// its first section. Heading lines alone do not qualify.
func (c *Chunker) articleIntro(base spot, pre string) *contract.Chunk {
	if len(strings.TrimSpace(pre)) <= c.minChars {
		return nil
	}
	stripped := strings.TrimSpace(headingLineRe.ReplaceAllString(pre, ""))
	if len(stripped) <= c.minChars/2 {
		return nil
	}
	return c.newChunk(base, pre, contract.ChunkTypeIntro)
}

// sectionSpan is one "Section N." block inside an article.
type sectionSpan struct {
	start   int
	num     int
	title   string
	content string
}

func findSections(content string) []sectionSpan {
	matches := sectionHeaderRe.FindAllStringSubmatchIndex(content, -1)
	starts := make([][]int, 0, len(matches))
	for _, m := range matches {
		// Contract prose cross-references sections constantly ("as
		// provided in Section 73"). Only matches that open a line are
		// headers.
		if sectionAtLineStart(content, m[0]) {
			starts = append(starts, m)
		}
	}
	spans := make([]sectionSpan, 0, len(starts))
	for i, m := range starts {
		num, err := strconv.Atoi(content[m[2]:m[3]])
		if err != nil {
			continue
		}
		end := len(content)
		if i+1 < len(starts) {
			end = starts[i+1][0]
		}
		spans = append(spans, sectionSpan{
			start:   m[0],
			num:     num,
			title:   sectionTitle(content[m[4]:m[5]]),
			content: strings.TrimSpace(content[m[0]:end]),
		})
	}
	return spans
}

// sectionAtLineStart reports whether the byte at pos begins a line,
// allowing leading whitespace and bold markers.
func sectionAtLineStart(content string, pos int) bool {
	for pos > 0 {
		switch content[pos-1] {
		case ' ', '\t', '*':
			pos--
		case '\n':
			return true
		default:
			return false
		}
	}
	return true
}

// sectionTitle strips bold markers and trailing periods from a section
// title capture.
func sectionTitle(raw string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(raw), "*."))
}

func (c *Chunker) chunkSection(base spot, sec sectionSpan) []*contract.Chunk {
	at := base
	at.sectionNum = sec.num
	at.sectionTitle = sec.title

	lettered := letteredSubRe.FindAllStringSubmatchIndex(sec.content, -1)
	if len(lettered) >= 2 && len(sec.content) > c.targetChars {
		return c.splitLettered(at, sec.content, lettered)
	}
	if len(sec.content) > c.maxChars {
		if numbered := numberedSubRe.FindAllStringSubmatchIndex(sec.content, -1); len(numbered) >= 3 {
			return c.splitNumbered(at, sec.content, numbered)
		}
		return c.splitParagraphs(at, sec.content)
	}
	if ch := c.newChunk(at, sec.content, contract.ChunkTypeSection); ch != nil {
		return []*contract.Chunk{ch}
	}
	return nil
}

// splitLettered emits one chunk per lettered subsection, plus an
// unlabeled lead-in chunk when the section has substantive text before
// subsection a.
func (c *Chunker) splitLettered(base spot, content string, matches [][]int) []*contract.Chunk {
	var chunks []*contract.Chunk
	if matches[0][0] > c.minChars {
		if ch := c.newChunk(base, content[:matches[0][0]], contract.ChunkTypeSection); ch != nil {
			chunks = append(chunks, ch)
		}
	}
	for i, m := range matches {
		end := len(content)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		at := base
		at.subsection = strings.ToLower(content[m[2]:m[3]])
		at.subsectionTitle = strings.TrimSpace(content[m[4]:m[5]])
		if ch := c.newChunk(at, content[m[0]:end], contract.ChunkTypeSubsection); ch != nil {
			chunks = append(chunks, ch)
		}
	}
	return chunks
}

// splitNumbered groups numbered items toward the target size. Groups
// are labeled by the item range they cover ("1-4"), with a trailing
// "+" when the final group runs to the end of the list.
func (c *Chunker) splitNumbered(base spot, content string, matches [][]int) []*contract.Chunk {
	var chunks []*contract.Chunk
	if matches[0][0] > c.minChars {
		if ch := c.newChunk(base, content[:matches[0][0]], contract.ChunkTypeSection); ch != nil {
			chunks = append(chunks, ch)
		}
	}
	group, groupStart, last := "", "", ""
	flush := func(label string) {
		at := base
		at.subsection = label
		if ch := c.newChunk(at, group, contract.ChunkTypeSubsection); ch != nil {
			chunks = append(chunks, ch)
		}
	}
	for i, m := range matches {
		num := content[m[2]:m[3]]
		end := len(content)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		item := strings.TrimSpace(content[m[0]:end])
		if groupStart == "" {
			groupStart = num
		}
		switch {
		case group != "" && len(group)+len(item) > c.targetChars:
			n, _ := strconv.Atoi(num)
			flush(fmt.Sprintf("%s-%d", groupStart, n-1))
			group, groupStart = item, num
		case group == "":
			group = item
		default:
			group += "\n\n" + item
		}
		last = num
	}
	if group != "" {
		if groupStart == last {
			flush(groupStart)
		} else {
			flush(groupStart + "+")
		}
	}
	return chunks
}

// splitParagraphs accumulates paragraphs toward the target size and
// labels the pieces part1..partN. A section that never overflows keeps
// its plain section identity.
func (c *Chunker) splitParagraphs(base spot, content string) []*contract.Chunk {
	var chunks []*contract.Chunk
	part := 1
	cur := ""
	flush := func() {
		at := base
		at.subsection = fmt.Sprintf("part%d", part)
		if ch := c.newChunk(at, cur, contract.ChunkTypePart); ch != nil {
			chunks = append(chunks, ch)
		}
		part++
	}
	for _, para := range strings.Split(content, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if cur != "" && len(cur)+len(para) > c.targetChars {
			flush()
			cur = para
			continue
		}
		if cur == "" {
			cur = para
		} else {
			cur += "\n\n" + para
		}
	}
	if cur == "" {
		return chunks
	}
	if part == 1 {
		if ch := c.newChunk(base, cur, contract.ChunkTypeSection); ch != nil {
			chunks = append(chunks, ch)
		}
	} else {
		flush()
	}
	return chunks
}

// chunkLOU handles a "## Letter of Understanding #N" block: whole when
// it fits, split on paragraphs when it does not.
func (c *Chunker) chunkLOU(content string) []*contract.Chunk {
	m := louHeaderRe.FindStringSubmatch(content)
	if m == nil {
		return nil
	}
	num := m[1]
	if len(content) <= c.maxChars {
		if ch := c.newLOUChunk(num, "", 1, content); ch != nil {
			return []*contract.Chunk{ch}
		}
		return nil
	}
	var chunks []*contract.Chunk
	part := 1
	cur := ""
	flush := func() {
		if ch := c.newLOUChunk(num, "", part, cur); ch != nil {
			chunks = append(chunks, ch)
		}
		part++
	}
	for _, para := range strings.Split(content, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if cur != "" && len(cur)+len(para) > c.targetChars {
			flush()
			cur = para
			continue
		}
		if cur == "" {
			cur = para
		} else {
			cur += "\n\n" + para
		}
	}
	if cur != "" {
		flush()
	}
	return chunks
}

// chunkLOUList recovers letters of understanding published as a
// numbered list under a "LETTERS OF UNDERSTANDING" heading. Entries
// are short summaries, so bodies are capped instead of split.
func (c *Chunker) chunkLOUList(content string) []*contract.Chunk {
	loc := louListMarkerRe.FindStringIndex(content)
	if loc == nil {
		return nil
	}
	tail := content[loc[0]:]
	entries := louListEntryRe.FindAllStringSubmatchIndex(tail, -1)
	var chunks []*contract.Chunk
	for i, m := range entries {
		num := tail[m[2]:m[3]]
		title := truncate(strings.TrimSpace(tail[m[4]:m[5]]), 50)
		end := len(tail)
		if i+1 < len(entries) {
			end = entries[i+1][0]
		}
		body := truncate(Clean(tail[m[0]:end]), louListBodyCap)
		if len(body) < minSubstantiveChars {
			continue
		}
		chunks = append(chunks, &contract.Chunk{
			ChunkID:       "lou" + num,
			ContractID:    c.contractID,
			Content:       body,
			Citation:      "Letter of Understanding " + num,
			ArticleTitle:  "Letter of Understanding " + num + ": " + title,
			ParentContext: "Letter of Understanding " + num,
			ChunkType:     contract.ChunkTypeLOU,
			DocType:       contract.DocTypeLOU,
			CharCount:     len(body),
			UrgencyTier:   UrgencyTier(body),
			AppliesTo:     []string{"all"},
		})
	}
	return chunks
}

func (c *Chunker) newLOUChunk(num, title string, part int, raw string) *contract.Chunk {
	content := Clean(raw)
	if len(content) < minSubstantiveChars {
		return nil
	}
	id := "lou" + num
	citation := "Letter of Understanding " + num
	if part > 1 {
		id += fmt.Sprintf("_part%d", part)
		citation += fmt.Sprintf(", Part %d", part)
	}
	return &contract.Chunk{
		ChunkID:       id,
		ContractID:    c.contractID,
		Content:       content,
		Citation:      citation,
		ArticleTitle:  title,
		ParentContext: "Letter of Understanding " + num,
		ChunkType:     contract.ChunkTypeLOU,
		DocType:       contract.DocTypeLOU,
		CharCount:     len(content),
		UrgencyTier:   UrgencyTier(content),
		AppliesTo:     []string{"all"},
	}
}

// wholeDocumentChunk is the last-resort fallback for text with no
// recognizable article structure. Losing structure beats losing text.
func (c *Chunker) wholeDocumentChunk(raw string) *contract.Chunk {
	content := Clean(raw)
	if len(content) < minSubstantiveChars {
		return nil
	}
	return &contract.Chunk{
		ChunkID:       "doc",
		ContractID:    c.contractID,
		Content:       content,
		Citation:      "Full Document",
		ParentContext: "Full Document",
		ChunkType:     contract.ChunkTypeArticle,
		DocType:       contract.DocTypeCBA,
		CharCount:     len(content),
		UrgencyTier:   UrgencyTier(content),
		AppliesTo:     []string{"all"},
	}
}

// spot is a position in the article / section / subsection tree; it
// carries everything newChunk needs to build ids and citations.
type spot struct {
	articleNum      int
	articleTitle    string
	sectionNum      int
	sectionTitle    string
	subsection      string
	subsectionTitle string
}

func (c *Chunker) newChunk(at spot, raw string, kind contract.ChunkType) *contract.Chunk {
	content := Clean(raw)
	if len(content) < minSubstantiveChars {
		return nil
	}

	id := "art" + strconv.Itoa(at.articleNum)
	if at.sectionNum > 0 {
		id += "_sec" + strconv.Itoa(at.sectionNum)
	}
	if at.subsection != "" {
		id += "_" + at.subsection
	}

	citation := "Article " + strconv.Itoa(at.articleNum)
	if at.sectionNum > 0 {
		citation += ", Section " + strconv.Itoa(at.sectionNum)
	}
	switch {
	case at.subsection == "":
	case at.subsectionTitle != "":
		citation += fmt.Sprintf(", Subsection %s (%s)", at.subsection, at.subsectionTitle)
	case strings.HasPrefix(at.subsection, "part"):
		citation += ", Part " + strings.TrimPrefix(at.subsection, "part")
	default:
		citation += ", Part " + at.subsection
	}

	trail := make([]string, 0, 3)
	if at.articleTitle != "" {
		trail = append(trail, fmt.Sprintf("Article %d (%s)", at.articleNum, at.articleTitle))
	} else {
		trail = append(trail, fmt.Sprintf("Article %d", at.articleNum))
	}
	if at.sectionNum > 0 {
		if at.sectionTitle != "" {
			trail = append(trail, fmt.Sprintf("Section %d (%s)", at.sectionNum, at.sectionTitle))
		} else {
			trail = append(trail, fmt.Sprintf("Section %d", at.sectionNum))
		}
	}
	if at.subsection != "" && at.subsectionTitle != "" {
		trail = append(trail, fmt.Sprintf("Subsection %s (%s)", at.subsection, at.subsectionTitle))
	}

	return &contract.Chunk{
		ChunkID:         id,
		ContractID:      c.contractID,
		Content:         content,
		Citation:        citation,
		ArticleNum:      at.articleNum,
		ArticleTitle:    at.articleTitle,
		SectionNum:      at.sectionNum,
		Subsection:      at.subsection,
		SubsectionTitle: at.subsectionTitle,
		ParentContext:   strings.Join(trail, " > "),
		ChunkType:       kind,
		DocType:         contract.DocTypeCBA,
		CharCount:       len(content),
		UrgencyTier:     UrgencyTier(content),
		AppliesTo:       []string{"all"},
	}
}

func containsLOU(chunks []*contract.Chunk) bool {
	for _, ch := range chunks {
		if ch.DocType == contract.DocTypeLOU {
			return true
		}
	}
	return false
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
