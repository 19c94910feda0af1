package mcpserver

// LinkContract describes the fields of a vault link and the accepted access
// levels, for LLM consumers creating links.
const LinkContract = `# VaultLinks Link Contract

A vault link records a shared-drive URL together with the sharing level the
owner intends for it. Links are created and deleted, never edited.

## Fields

| Field          | Required | Notes                                                  |
|----------------|----------|--------------------------------------------------------|
| ` + "`url`" + `          | yes      | Must start with ` + "`http://`" + ` or ` + "`https://`" + `.                    |
| ` + "`name`" + `         | yes      | Free text label shown in the list.                     |
| ` + "`access_level`" + ` | no       | One of the levels below. Defaults to ` + "`Restricted`" + `.     |

## Access levels

- ` + "`Restricted`" + `: only people explicitly granted access.
- ` + "`Anyone with link`" + `: anyone holding the URL.
- ` + "`Public`" + `: discoverable by anyone.

The access level is a label. VaultLinks does not change permissions on the
target drive.

## Deleting

` + "`delete_link`" + ` requires ` + "`confirm: true`" + `. Without it nothing is sent.
`
