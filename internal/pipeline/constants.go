package pipeline

// DefaultReportDir is where reports are written when no directory is given.
const DefaultReportDir = "."
