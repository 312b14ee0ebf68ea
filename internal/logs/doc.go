// Package logs reads back the JSON log file the CLI writes next to its
// console output.
//
// Every operation stamps its records with an operation name and a run id, so
// the helpers here can replay one repair or import after the fact, list the
// runs a log file contains, and follow the file while another process is
// working. Reads are bounded: tailing keeps only the last N matching records
// in memory.
package logs
