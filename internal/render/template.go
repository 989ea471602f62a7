package render

const portfolioTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}} · Developer Portfolio</title>
<style>
  :root { --accent: {{.Accent}}; }
  body { font-family: {{.Font}}; margin: 0; color: #1f2937; background: #f9fafb; }
  header { background: var(--accent); color: #fff; padding: 3rem 1.5rem; }
  header img { width: 96px; height: 96px; border-radius: 50%; }
  main { max-width: 960px; margin: 0 auto; padding: 1.5rem; }
  section h2 { border-bottom: 2px solid var(--accent); padding-bottom: .25rem; }
  .cards { display: grid; grid-template-columns: repeat(auto-fill, minmax(280px, 1fr)); gap: 1rem; }
  .card { background: #fff; border-radius: 8px; padding: 1rem; box-shadow: 0 1px 3px rgba(0,0,0,.1); }
  .card h3 { margin-top: 0; }
  .card a { color: var(--accent); text-decoration: none; }
  .meta { color: #6b7280; font-size: .875rem; }
  .skills { display: flex; flex-wrap: wrap; gap: .5rem; padding: 0; list-style: none; }
  .skills li { background: #fff; border: 1px solid var(--accent); border-radius: 999px; padding: .25rem .75rem; font-size: .875rem; }
  footer { text-align: center; color: #9ca3af; font-size: .75rem; padding: 2rem; }
</style>
</head>
<body>
<header>
  {{- if .User.AvatarURL}}
  <img src="{{.User.AvatarURL}}" alt="{{.Title}}">
  {{- end}}
  <h1>{{.Title}}</h1>
  {{- if .Profile}}
  {{- if .Profile.Bio}}<p>{{.Profile.Bio}}</p>{{end}}
  <p class="meta">
    {{- if .Profile.Location}}{{.Profile.Location}} · {{end -}}
    {{.Profile.Followers}} followers · {{.Profile.PublicRepos}} public repos
  </p>
  {{- end}}
</header>
<main>
  <section>
    <h2>Projects</h2>
    <div class="cards">
      {{- range .Repositories}}
      <div class="card">
        <h3><a href="{{.URL}}">{{.Name}}</a></h3>
        {{- with card .}}<p>{{.}}</p>{{end}}
        <p class="meta">
          {{- if .Language}}{{.Language}} · {{end -}}
          ★ {{.Stars}}
        </p>
      </div>
      {{- end}}
    </div>
  </section>
  <section>
    <h2>Skills</h2>
    <ul class="skills">
      {{- range .Skills}}
      <li>{{.Name}}</li>
      {{- end}}
    </ul>
  </section>
</main>
<footer>Generated {{.GeneratedAt.Format "Jan 2, 2006"}} from {{.User.GitHubUsername}}'s GitHub activity.</footer>
</body>
</html>
`
