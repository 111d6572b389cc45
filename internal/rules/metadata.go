package rules

// RuleInfo describes one rule identifier for catalogs and reports.
type RuleInfo struct {
	ID              string   `json:"ruleId" yaml:"ruleId"`
	Name            string   `json:"name" yaml:"name"`
	Summary         string   `json:"summary" yaml:"summary"`
	DefaultSeverity Severity `json:"severity" yaml:"severity"`
}

var catalog = []RuleInfo{
	{IDBoxSize, "Box Size Integrity", "Declared box sizes cover their header and stay inside the file.", ERROR},
	{IDContainerBoundary, "Container Boundary Closure", "Children tile their container payload without gaps or overlaps.", ERROR},
	{IDVersionFlags, "Version and Flags Consistency", "Full boxes carry the version and flags their type requires.", WARN},
	{IDFileTypeOrdering, "File Type Ordering", "No media-carrying box precedes the file type box.", ERROR},
	{IDMovieDataOrdering, "Movie Data Ordering", "Movie metadata precedes media data unless the file is fragmented.", WARN},
	{IDUnknownBox, "Research Log Recording", "Box types missing from the catalog are recorded for research.", INFO},
	{IDEditList, "Edit List Duration Reconciliation", "Edit list durations agree with movie, track and media headers.", WARN},
	{IDSampleTable, "Sample Table Correlation", "Chunk, size and timing tables describe the same samples.", ERROR},
	{IDFragmentSequence, "Fragment Sequence Order", "Movie fragment sequence numbers start at 1 and increase.", WARN},
	{IDFragmentRun, "Fragment Run Integrity", "Track runs carry samples with resolvable durations.", ERROR},
	{IDCodecConfiguration, "Codec Configuration Integrity", "AVC and HEVC configuration records hold their declared parameter sets.", ERROR},
	{IDTopLevelAdvisory, "Top-Level Ordering Advisory", "Unexpected top-level boxes before the file type or movie box.", WARN},
	{IDParse, "Parse Integrity", "Box headers can be decoded and nested within their parent.", ERROR},
}

// Catalog lists every rule identifier in registration order followed by the
// walker's parse identifier.
func Catalog() []RuleInfo {
	return append([]RuleInfo(nil), catalog...)
}

// Lookup returns the catalog entry for id.
func Lookup(id string) (RuleInfo, bool) {
	for _, info := range catalog {
		if info.ID == id {
			return info, true
		}
	}
	return RuleInfo{}, false
}
