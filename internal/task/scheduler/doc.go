// Package scheduler runs named tick handlers on an interval for a fixed
// number of repetitions, or forever.
//
// Each Enable starts a new generation for its task name. Deferred tick steps
// carry the generation they were armed for and do nothing unless the
// registry still holds it, so a Disable or a later Enable cannot be
// overtaken by a timer that already fired. The next step is always armed
// before the handler runs; a slow or failing handler does not stop the
// recurrence.
package scheduler
