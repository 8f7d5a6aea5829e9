package sqlinline

const QEnsureBatchSchema = `--sql 825dd95d-b61c-4752-af0f-cca437bbf5b5
create table if not exists batch_jobs (
    id uuid primary key,
    input_type text not null,
    prompt text not null,
    audio_prompt text not null default '',
    model text not null,
    aspect_ratio text not null,
    quality text not null,
    image_mime text not null default '',
    image_name text not null default '',
    status text not null,
    progress_message text not null default '',
    error_message text not null default '',
    error_kind text not null default '',
    result_url text not null default '',
    download_url text not null default '',
    attempts integer not null default 0,
    created_at timestamptz not null,
    updated_at timestamptz not null,
    started_at timestamptz,
    finished_at timestamptz
);
create index if not exists batch_jobs_created_at_idx on batch_jobs (created_at desc);
create table if not exists provider_credentials (
    provider text primary key,
    api_key text not null,
    properties jsonb not null default '{}'::jsonb,
    created_at timestamptz not null default now(),
    rotated_at timestamptz not null default now()
);
`

// QUpsertBatchJob never lets an older snapshot overwrite a newer one;
// listeners may deliver a job's changes out of order.
const QUpsertBatchJob = `--sql e30bdf11-8ce8-491d-b678-ef7fbaa4ef12
insert into batch_jobs (
    id, input_type, prompt, audio_prompt, model, aspect_ratio, quality, image_mime, image_name,
    status, progress_message, error_message, error_kind, result_url, download_url, attempts,
    created_at, updated_at, started_at, finished_at
)
values ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
on conflict (id) do update set
    status = excluded.status,
    progress_message = excluded.progress_message,
    error_message = excluded.error_message,
    error_kind = excluded.error_kind,
    result_url = excluded.result_url,
    download_url = excluded.download_url,
    attempts = excluded.attempts,
    updated_at = excluded.updated_at,
    started_at = excluded.started_at,
    finished_at = excluded.finished_at
where batch_jobs.updated_at <= excluded.updated_at;
`

const QDeleteBatchJob = `--sql fe1ec01b-2793-4f3d-b438-02c06c9714ca
delete from batch_jobs
where id = $1::uuid;
`

const QSelectBatchJob = `--sql 0e45dacf-5f83-48e2-a69d-8985c51ca1c3
select id::text, input_type, prompt, audio_prompt, model, aspect_ratio, quality, image_mime, image_name,
       status, progress_message, error_message, error_kind, result_url, download_url, attempts,
       created_at, updated_at, started_at, finished_at
from batch_jobs
where id = $1::uuid;
`

const QListRecentBatchJobs = `--sql 6584244d-125d-4192-8b2d-6c11a5c83f98
select id::text, input_type, prompt, audio_prompt, model, aspect_ratio, quality, image_mime, image_name,
       status, progress_message, error_message, error_kind, result_url, download_url, attempts,
       created_at, updated_at, started_at, finished_at
from batch_jobs
order by created_at desc
limit $1;
`
