// Package bundle writes the split bundles of a build.
//
// Every Descriptor gets its own sub-pipeline: the rows are serialized by the
// `pack` stage, run through the transforms of the `wrap` stage and written
// to a sink created by the configured output. All pipelines run
// concurrently; the first failure cancels the others. Sinks that stage
// their output are committed only once every pipeline succeeded, so a
// failed build publishes no bundle.
package bundle
