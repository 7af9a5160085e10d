// Package supervisor implements the gRPC transport of the process supervisor.
//
// Messages are protobuf well-known types, so the service needs no generated
// code: the service descriptor below is written by hand and both the server
// and the client use the same method names.
package supervisor
