package sqlinline

const QCreateHistoryTable = `--sql 69875810-ff44-414d-ba45-5423e085ce4c
create table if not exists tryon_history (
    job_id                text primary key,
    status                text not null,
    user_image_path       text not null default '',
    style_image_path      text not null default '',
    result_image_path     text not null default '',
    comparison_image_path text not null default '',
    video_job_id          text not null default '',
    video_path            text not null default '',
    video_status          text not null default '',
    description           text not null default '',
    identity_note         text not null default '',
    error_message         text not null default '',
    style_name            text not null default '',
    style_id              text not null default '',
    created_at            timestamptz not null,
    updated_at            timestamptz not null,
    deleted_at            timestamptz
);
`

const QCreateHistoryCreatedIndex = `--sql f678bcfe-c8cf-40fd-aaab-962530d3c5ec
create index if not exists tryon_history_created_at_idx
    on tryon_history (created_at desc)
    where deleted_at is null;
`

const QInsertHistory = `--sql d7b817a9-a31b-430d-8101-4f3ce2139d43
insert into tryon_history (
    job_id, status, user_image_path, style_image_path, result_image_path,
    comparison_image_path, video_job_id, video_path, video_status, description,
    identity_note, error_message, style_name, style_id, created_at, updated_at
) values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
on conflict (job_id) do nothing;
`

const QUpdateHistory = `--sql 2f8436a7-5fce-4a4b-b9e6-88d18c03317c
update tryon_history
set status                = coalesce($2, status),
    user_image_path       = coalesce($3, user_image_path),
    style_image_path      = coalesce($4, style_image_path),
    result_image_path     = coalesce($5, result_image_path),
    comparison_image_path = coalesce($6, comparison_image_path),
    video_job_id          = coalesce($7, video_job_id),
    video_path            = coalesce($8, video_path),
    video_status          = coalesce($9, video_status),
    description           = coalesce($10, description),
    identity_note         = coalesce($11, identity_note),
    error_message         = coalesce($12, error_message),
    updated_at            = now()
where job_id = $1
  and deleted_at is null;
`

const QSelectHistory = `--sql 507488a8-872d-46e1-b622-423c7bd465b3
select job_id, status, user_image_path, style_image_path, result_image_path,
       comparison_image_path, video_job_id, video_path, video_status, description,
       identity_note, error_message, style_name, style_id, created_at, updated_at
from tryon_history
where job_id = $1
  and deleted_at is null;
`

const QListHistory = `--sql a9cc131a-2375-43b4-b7fb-0a7cbfbd4678
select job_id, status, user_image_path, style_image_path, result_image_path,
       comparison_image_path, video_job_id, video_path, video_status, description,
       identity_note, error_message, style_name, style_id, created_at, updated_at
from tryon_history
where deleted_at is null
order by created_at desc, job_id desc
limit $1 offset $2;
`

const QCountHistory = `--sql 62b2dc97-cbc1-4399-9f11-dc60fa68544f
select count(*)
from tryon_history
where deleted_at is null;
`

const QSoftDeleteHistory = `--sql c7978cd7-bd12-4543-b98e-ccac226fdffa
update tryon_history
set deleted_at = now(),
    updated_at = now()
where job_id = $1
  and deleted_at is null;
`

const QPurgeHistory = `--sql e712a512-59ea-4837-a51a-3570b5c41a7c
delete from tryon_history
where deleted_at is not null
  and deleted_at < $1;
`
