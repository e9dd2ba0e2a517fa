// Package query validates, translates and post-processes event queries.
//
// A request (Options) is validated against the schema registry into a
// Plan, the normalized query IR. Compile turns a Plan into the arguments
// of the query script, which filters, selects, groups and counts inside
// Redis. Grouping by a timestamp with a calendar granularity is finished
// here: the script groups by minute and Rebucket merges minutes into hour,
// day, week, month or year buckets.
//
// Validation is complete before anything is executed. A request that names
// several event types is checked against each of them independently and
// fails if any one lacks a referenced field.
package query
