// Package hostapi exposes the bridge to the guest as wazero host modules.
//
// # Modules
//
//	api_workers      worker_spawn, worker_is_active, worker_stop,
//	                 worker_stop_all, worker_list_len, worker_list,
//	                 worker_send_message, worker_eval, worker_poll,
//	                 worker_poll_status, worker_poll_len, worker_cancel_eval
//	api_events       event_addListener, event_addListenerMouse,
//	                 event_addListenerPointer, event_removeListener,
//	                 event_addListenerJs, event_removeListenerJs
//	api_window       window_set_timeout, window_set_interval,
//	                 window_clear_timeout, window_request_animation_frame,
//	                 window_cancel_animation_frame, window_eval,
//	                 window_eval_timeout, window_eval_interval
//	api_console      console_log, console_info, console_warn,
//	                 console_error, console_debug
//	api_performance  now, timeOrigin, eventCounts, activeTimers
//
// # Conventions
//
// Strings are (ptr, len) pairs of UTF-8 in guest memory. Handles are
// non-zero u32s; 0 means the operation failed. worker_list writes u32
// handles and takes its capacity in elements, not bytes.
//
// worker_poll returns the bytes written, 0 while pending, -1 for an
// unknown or abandoned job, and the negated required length when the
// buffer is too small (the result is kept for a retry). The short-buffer
// signal is at most -2: a one-byte result polled with capacity 0 reports
// -2. A buffer outside guest memory returns math.MinInt32 and also keeps
// the result. A ready empty
// result also returns 0; worker_poll_status tells the cases apart:
//
//	0  not found
//	1  pending
//	2  ready
//	3  abandoned (reported once, then not found)
//
// Failures never trap the guest. They are logged at Warn and counted in
// the host_failures_total metric.
package hostapi
