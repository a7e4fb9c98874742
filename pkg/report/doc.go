// Package report stores diff reports and renders them as text.
//
// Reports live under <data_dir>/<subject>/reports/ next to the snapshots they
// were computed from. Render prints added and removed identifiers per kind,
// capping each list and summarising the remainder as "... and N more".
package report
