// Package build runs the firmware build pipeline.
//
// A Service executes one build per request: it resets the device workspace,
// provisions SSH credentials, clones the source, renders platformio.ini,
// assembles certificates, runs the toolchain and packages the binaries. Stages
// run strictly in order and the first failure aborts the run with a
// *StageError naming the stage. Runs for the same device are serialized.
package build
