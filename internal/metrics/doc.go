// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package metrics provides Prometheus instrumentation for the scheduler,
gateway, and compilation worker services.

# Overview

Collector registers every instrument once via promauto and exposes small
typed methods (SchedulerQueueDepth, GatewayPoolSize, WorkerPoolRestarted,
...) so callers never touch a *prometheus.CounterVec directly. Instruments
are namespaced and labelled by component name so a single dashboard can
cover all three services.

# Instrument groups

  - Scheduler: queue depth, dispatch counts, in-flight requests, RPC
    duration and error counts, per scheduler name.
  - Gateway: pool size per model/pool key, health-eviction counts,
    forwarded/forward-error counts, per gateway name.
  - Compilation worker: pool restart count, task queue depth, active
    batch count, batch duration.
*/
package metrics
