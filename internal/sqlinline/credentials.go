package sqlinline

const QSelectProviderCredential = `--sql 3c1f9a7e-52b4-4d0e-9f61-0b8d2e47a915
select api_key
from provider_credentials
where provider = $1::text;
`

// QUpsertProviderCredential bumps rotated_at only when the key changes.
const QUpsertProviderCredential = `--sql b7e2d6c4-19a3-4f85-8c0e-6a4f1d93e2b8
insert into provider_credentials (provider, api_key, properties, created_at, rotated_at)
values ($1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb), now(), now())
on conflict (provider) do update set
    api_key = excluded.api_key,
    properties = excluded.properties,
    rotated_at = case
        when provider_credentials.api_key is distinct from excluded.api_key then now()
        else provider_credentials.rotated_at
    end;
`

const QDeleteProviderCredential = `--sql e4a90c15-7d3b-4b62-a8f7-2c5e0d18b6f3
delete from provider_credentials
where provider = $1::text;
`
