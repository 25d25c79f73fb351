// Package tracker is the archivist-side client for a solar tracker.
//
// # Overview
//
// A tracker hands out tasks for a project, records their status, and stores
// the items archivists produce. The protocol is four POST verbs under
// {base}v1/ plus a GET {base}ping liveness probe:
//
//	POST v1/projects
//	POST v1/project/{project}
//	POST v1/project/{project}/{client_version}/{archivist}/claim_task
//	POST v1/project/{project}/{client_version}/{archivist}/update_task/{task_id}
//	POST v1/project/{project}/{client_version}/{archivist}/insert_item/{item_id}
//
// # Usage
//
//	t, err := tracker.New(ctx, tracker.Config{
//		ProjectID:     "lowapk_v2",
//		Archivist:     "alice",
//		ClientVersion: "1.1",
//	})
//	if err != nil {
//		log.Fatal(err) // bad identifiers or client_version mismatch
//	}
//
//	task, err := t.ClaimTask(ctx) // paced by claim_task_delay
//	if err != nil {
//		return err
//	}
//	if task == nil {
//		return nil // no task right now
//	}
//	project, _ := t.Project(ctx)
//	id, err := task.ID(project.Mongodb.DocIDName())
//	...
//	_, err = t.InsertItem(ctx, id, tracker.NoStatus(), data)
//	_, err = t.UpdateTask(ctx, id, "DONE")
//
// # Ids
//
// The tracker keeps task and item ids with their original JSON type, so the
// client always sends a type tag next to the id. ID and ItemStatus are small
// tagged unions built with StrID/IntID and NoStatus/StrStatus/IntStatus.
//
// # Caching and pacing
//
// The project is cached for 60 seconds; Project returns a copy. ClaimTask
// sleeps until claim_task_delay has passed since the previous claim. The
// delay is a courtesy to the tracker and is not enforced server side.
package tracker
