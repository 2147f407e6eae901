/*
Package api is the network front door to a manager node.

Two listeners cover two different concerns:

  - Server is an mTLS gRPC listener carrying only the standard
    grpc_health_v1 health-check service, so load balancers and orchestrators
    can probe liveness with a real gRPC client without this package having
    to hand-maintain generated code for a desired-state wire format nothing
    in this system mandates.
  - HealthServer is a plain HTTP/JSON listener: /health and /ready probes,
    a /metrics Prometheus endpoint, and the /desired-state and
    /workload-state endpoints agents and operators use to drive
    cluster.Manager. ReadOnlyMiddleware can bind its mux to a local,
    unauthenticated socket that only answers GET requests, leaving the
    write path reachable solely through the TCP listener Start binds.
    That TCP listener is plain HTTP; this package adds no TLS to it.

Both listeners read and write through cluster.Manager, which is the only
thing in this process allowed to touch the Raft log.
*/
package api
