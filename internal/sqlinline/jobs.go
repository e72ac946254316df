// Package sqlinline holds the SQL statements executed through
// infra.SQLRunner. Every statement carries a `--sql <uuid>` audit marker so
// log lines reference a stable id instead of statement text.
package sqlinline

const QCreateJob = `--sql 6295b10c-ff0b-4b9e-b481-19ca5c062d01
insert into jobs (id, original_filename, input_path, output_format, state, progress, attempts, created_at, updated_at)
values ($1, $2, $3, $4, 'pending', 0, 0, now(), now());
`

const QGetJob = `--sql 72c6197a-9215-4d73-aa25-629859b87586
select id, original_filename, input_path, output_format, state, progress,
       coalesce(object_key, ''), coalesce(error_message, ''), attempts, created_at, updated_at
from jobs
where id = $1;
`

// QMarkActive increments the attempt counter in the same statement so the
// claiming worker learns the attempt number atomically with the pending to
// active transition. Terminal states are never overwritten; a redelivery of
// an already finished job scans no row and is dropped by the worker.
const QMarkActive = `--sql 7292d118-a7f4-403d-850f-acfd8b366c1b
update jobs
set state = 'active', attempts = attempts + 1, updated_at = now()
where id = $1 and state in ('pending', 'active')
returning attempts;
`

const QSetProgress = `--sql 62578d16-545c-4498-8ec8-be9bdb39b069
update jobs
set progress = $2, updated_at = now()
where id = $1 and state = 'active';
`

const QMarkCompleted = `--sql 8043706f-0624-46b5-8664-db8ddb27c2bb
update jobs
set state = 'completed', progress = 100, object_key = $2, error_message = null, updated_at = now()
where id = $1 and state = 'active';
`

const QMarkFailed = `--sql df521509-f172-4d5b-9ebf-1fedfe58bf7d
update jobs
set state = 'failed', error_message = $2, updated_at = now()
where id = $1 and state in ('pending', 'active');
`

const QDeleteCompletedBefore = `--sql 625aa962-38f7-4d7e-99bc-e06285b9d22e
delete from jobs
where state = 'completed' and updated_at < $1;
`

// QDeleteJob backs out a record whose enqueue never happened. It only ever
// runs against a job still pending with zero attempts.
const QDeleteJob = `--sql 52ceffd2-6d3e-4ab6-9dab-0e1d22130e2b
delete from jobs
where id = $1 and state = 'pending' and attempts = 0;
`
